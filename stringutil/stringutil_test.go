package stringutil

import (
	"testing"

	"golang.org/x/text/transform"
)

func TestCRLFToLF(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no crlf", "a: 1\nb: 2\n", "a: 1\nb: 2\n"},
		{"crlf", "a: 1\r\nb: 2\r\n", "a: 1\nb: 2\n"},
		{"lone cr", "a: 1\rb: 2", "a: 1\rb: 2"},
		{"mixed", "a: 1\r\nb: 2\n", "a: 1\nb: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := transform.String(CRLFToLF{}, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
