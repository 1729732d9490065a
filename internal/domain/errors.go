package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrCreation      = errors.New("backup creation failed")
	ErrUpload        = errors.New("upload failed")
	ErrList          = errors.New("listing failed")
	ErrDelete        = errors.New("delete failed")
)

// OpError records a failed operation against a backup collaborator.
// Kind is one of the sentinel errors above and is matched by errors.Is.
type OpError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func NewOpError(kind error, op, path string, err error) error {
	return &OpError{Kind: kind, Op: op, Path: path, Err: err}
}
