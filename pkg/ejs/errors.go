package ejs

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheRequiresFilename is returned by Render when Options.Cache is set
	// without Options.Filename.
	ErrCacheRequiresFilename = errors.New(`"cache" option requires "filename"`)

	// ErrUnterminatedTag is wrapped by ParseError when a tag is opened with
	// "<%" and never closed with "%>".
	ErrUnterminatedTag = errors.New(`unterminated tag: missing "%>"`)
)

// ParseError reports a malformed template. Offset is the byte offset of the
// offending tag in the template source.
type ParseError struct {
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ejs: %v at offset %d", e.Err, e.Offset)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
