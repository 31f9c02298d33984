package dex

import "errors"

var (
	// ErrIndexRange indicates a string or proto index outside the file's tables.
	ErrIndexRange = errors.New("dex: index out of range")

	// ErrBadStringData indicates a malformed string data item.
	ErrBadStringData = errors.New("dex: malformed string data item")
)
