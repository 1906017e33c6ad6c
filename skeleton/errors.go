package skeleton

import (
	"github.com/pkg/errors"
)

var (
	// ErrRootExists is returned when inserting a root into a tree that already has one.
	ErrRootExists = errors.New("tree already has a root")
	// ErrNodeAlreadyInserted is returned when a node that already belongs to a tree is inserted again.
	ErrNodeAlreadyInserted = errors.New("node already belongs to a tree")
	// ErrUnknownNode is returned for a node handle that does not exist in the tree.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNoModelInformation is used when there is no model information.
	ErrNoModelInformation = errors.New("no model information")
)

// NewZeroAxisError is returned when a joint is given a rotation axis of zero length.
func NewZeroAxisError(name string) error {
	return errors.Errorf("joint %q has a zero length rotation axis", name)
}

// NewSlotTakenError is returned when inserting where a child or sibling link is already set.
func NewSlotTakenError(slot string, at NodeID) error {
	return errors.Errorf("node %d already has a %s", at, slot)
}

func newUnknownNodeError(id NodeID) error {
	return errors.Wrapf(ErrUnknownNode, "id %d", id)
}
