package jacobian

import "github.com/pkg/errors"

var (
	// ErrUndefinedUpdateMode is returned by CalcDeltaThetas when no update mode has been selected.
	ErrUndefinedUpdateMode = errors.New("update mode is undefined")
	// ErrNoTree is returned by operations that need a tree on a standalone Jacobian.
	ErrNoTree = errors.New("jacobian is not bound to a tree")
	// ErrTargetCount is returned when the number of targets differs from the number of effectors.
	ErrTargetCount = errors.New("target count does not match effector count")
)

func newTargetCountError(expected, actual int) error {
	return errors.Wrapf(ErrTargetCount, "got %d targets for %d effectors", actual, expected)
}
