package codec

import "errors"

// Erros do codec. Nunca são re-tentados: indicam buffer errado ou erro de programação.
var (
	ErrLayoutMismatch    = errors.New("layout mismatch")
	ErrTruncatedBuffer   = errors.New("truncated buffer")
	ErrUnknownVariantTag = errors.New("unknown variant tag")
)
