// Package stringutil contains small string-handling helpers shared across
// line-cook's packages.
package stringutil

import "golang.org/x/text/transform"

// CRLFToLF is a golang.org/x/text/transform.Transformer that rewrites CRLF
// line endings to LF, for normalizing config files that may have been saved
// with Windows line endings before they're handed to a YAML decoder.
type CRLFToLF struct{}

// Reset implements transform.Transformer. CRLFToLF is stateless across
// calls except for the one pending '\r' tracked within a single Transform.
func (CRLFToLF) Reset() {}

// Transform implements transform.Transformer.
func (CRLFToLF) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if b == '\r' {
			// Need to see the next byte to know whether this is CRLF; if we're
			// at the end of the buffer and not at EOF, ask for more input.
			if nSrc+1 >= len(src) {
				if !atEOF {
					return nDst, nSrc, nil
				}
				// Lone trailing \r at EOF: pass through unchanged.
			} else if src[nSrc+1] == '\n' {
				nSrc++ // Skip the \r, let the loop below write the \n.
				b = '\n'
			}
		}
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = b
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}
