package revindex

import "errors"

var (
	// ErrGather indicates the gather algorithm could not complete.
	ErrGather = errors.New("error during gather")

	// ErrSearch indicates the search algorithm could not complete.
	ErrSearch = errors.New("error during search")

	// ErrCorruptIndex indicates a serialized index failed validation.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrNoDatasets indicates no reference signature matched the template.
	ErrNoDatasets = errors.New("no template-compatible signatures")
)
