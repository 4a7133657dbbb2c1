package sketch

import "errors"

var (
	// ErrUnsupportedSignature indicates a signature carries no sketch at all.
	ErrUnsupportedSignature = errors.New("signature is not compatible with index")

	// ErrUnsupportedSketch indicates a signature has sketches but none match the template.
	ErrUnsupportedSketch = errors.New("sketch is not compatible with index")

	// ErrMalformed indicates signature data could not be decoded.
	ErrMalformed = errors.New("malformed signature data")
)
