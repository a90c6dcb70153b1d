package editor

import "errors"

// Rejections of an operation that is invalid in the current state. They are
// returned before any service request is made.
var (
	ErrNoBaseline        = errors.New("editor: no baseline for segment")
	ErrNoSelection       = errors.New("editor: no segment selected")
	ErrMultipleSelection = errors.New("editor: more than one segment selected")
	ErrInvalidPath       = errors.New("editor: no valid polygon drawn")
	ErrReadonly          = errors.New("editor: segment is readonly")
	ErrBusy              = errors.New("editor: a request for this segment is in flight")
	ErrNotOrdered        = errors.New("editor: segments have not been ordered")
	ErrLinkMode          = errors.New("editor: not available while linking")
)
