package utils

import (
	"github.com/pkg/errors"
)

// NewIndexOutOfRangeError is used when an index falls outside [0, length).
func NewIndexOutOfRangeError(kind string, index, length int) error {
	return errors.Errorf("%s index %d out of range [0, %d)", kind, index, length)
}

// NewLengthMismatchError is used when a slice or vector has the wrong length.
func NewLengthMismatchError(what string, expected, actual int) error {
	return errors.Errorf("%s has length %d, expected %d", what, actual, expected)
}
