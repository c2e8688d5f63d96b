package ir

import (
	"fmt"

	"github.com/pkg/errors"

	"dtl/internal/dtlerr"
)

func errGraphFull(format string, args ...interface{}) error {
	return errors.WithStack(&dtlerr.Error{
		Kind:    dtlerr.GraphFull,
		Message: fmt.Sprintf(format, args...),
	})
}

func errOutOfMemory(format string, args ...interface{}) error {
	return errors.WithStack(&dtlerr.Error{
		Kind:    dtlerr.OutOfMemory,
		Message: fmt.Sprintf(format, args...),
	})
}

func errShapeMismatch(format string, args ...interface{}) error {
	return errors.WithStack(&dtlerr.Error{
		Kind:    dtlerr.ShapeMismatch,
		Message: fmt.Sprintf(format, args...),
	})
}

func errTypeMismatch(format string, args ...interface{}) error {
	return errors.WithStack(&dtlerr.Error{
		Kind:    dtlerr.TypeMismatch,
		Message: fmt.Sprintf(format, args...),
	})
}
