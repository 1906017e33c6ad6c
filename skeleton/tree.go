// Package skeleton describes articulated bodies as trees of revolute joints and end effectors, and computes
// their forward kinematics.
package skeleton

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"go.viam.com/jacobik/utils"
)

// Tree owns a set of nodes linked as a left-child, right-sibling tree. Nodes are stored in an arena and referred
// to by NodeID. Joints and effectors are numbered separately in insertion order.
type Tree struct {
	nodes     []*Node
	root      NodeID
	joints    []NodeID
	effectors []NodeID
	dirty     bool
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{root: NoNode}
}

// NumNode returns the number of nodes in the tree.
func (t *Tree) NumNode() int { return len(t.nodes) }

// NumJoint returns the number of joints in the tree.
func (t *Tree) NumJoint() int { return len(t.joints) }

// NumEffector returns the number of effectors in the tree.
func (t *Tree) NumEffector() int { return len(t.effectors) }

// Root returns the root handle, or NoNode for an empty tree.
func (t *Tree) Root() NodeID { return t.root }

// Node returns the node with the given handle.
func (t *Tree) Node(id NodeID) (*Node, error) {
	n := t.node(id)
	if n == nil {
		return nil, newUnknownNodeError(id)
	}
	return n, nil
}

func (t *Tree) node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Parent returns the parent handle of id, NoNode for the root or an unknown id.
func (t *Tree) Parent(id NodeID) NodeID {
	if n := t.node(id); n != nil {
		return n.parent
	}
	return NoNode
}

// LeftChild returns the first child of id.
func (t *Tree) LeftChild(id NodeID) NodeID {
	if n := t.node(id); n != nil {
		return n.left
	}
	return NoNode
}

// RightSibling returns the next sibling of id.
func (t *Tree) RightSibling(id NodeID) NodeID {
	if n := t.node(id); n != nil {
		return n.right
	}
	return NoNode
}

// InsertRoot makes n the root of an empty tree.
func (t *Tree) InsertRoot(n *Node) (NodeID, error) {
	if t.root != NoNode {
		return NoNode, ErrRootExists
	}
	id, err := t.insert(n, nil)
	if err != nil {
		return NoNode, err
	}
	t.root = id
	return id, nil
}

// InsertLeftChild makes n the first child of parent.
func (t *Tree) InsertLeftChild(parent NodeID, n *Node) (NodeID, error) {
	p := t.node(parent)
	if p == nil {
		return NoNode, newUnknownNodeError(parent)
	}
	if p.left != NoNode {
		return NoNode, NewSlotTakenError("left child", parent)
	}
	id, err := t.insert(n, p)
	if err != nil {
		return NoNode, err
	}
	p.left = id
	return id, nil
}

// InsertRightSibling makes n the next sibling of sibling, sharing its parent.
func (t *Tree) InsertRightSibling(sibling NodeID, n *Node) (NodeID, error) {
	sib := t.node(sibling)
	if sib == nil {
		return NoNode, newUnknownNodeError(sibling)
	}
	if sibling == t.root {
		return NoNode, errors.New("the root cannot have siblings")
	}
	if sib.right != NoNode {
		return NoNode, NewSlotTakenError("right sibling", sibling)
	}
	id, err := t.insert(n, t.nodes[sib.parent])
	if err != nil {
		return NoNode, err
	}
	sib.right = id
	return id, nil
}

func (t *Tree) insert(n *Node, parent *Node) (NodeID, error) {
	if n == nil {
		return NoNode, errors.New("cannot insert a nil node")
	}
	if n.owner != nil {
		return NoNode, errors.Wrapf(ErrNodeAlreadyInserted, "node %q", n.name)
	}
	id := NodeID(len(t.nodes))
	n.id = id
	n.owner = t
	n.left, n.right = NoNode, NoNode
	if parent == nil {
		n.parent = NoNode
		n.r = n.attach
	} else {
		n.parent = parent.id
		n.r = n.attach.Sub(parent.attach)
	}
	t.setSeqNum(n)
	t.nodes = append(t.nodes, n)
	t.dirty = true
	return id, nil
}

func (t *Tree) setSeqNum(n *Node) {
	switch n.purpose {
	case Joint:
		n.seqNumJoint = len(t.joints)
		n.seqNumEffector = -1
		t.joints = append(t.joints, n.id)
	case Effector:
		n.seqNumEffector = len(t.effectors)
		n.seqNumJoint = -1
		t.effectors = append(t.effectors, n.id)
	}
}

// Successor returns the node after id in a preorder walk, or NoNode when the walk is over.
func (t *Tree) Successor(id NodeID) NodeID {
	n := t.node(id)
	if n == nil {
		return NoNode
	}
	if n.left != NoNode {
		return n.left
	}
	for {
		if n.right != NoNode {
			return n.right
		}
		if n.parent == NoNode {
			return NoNode
		}
		n = t.nodes[n.parent]
	}
}

// Preorder returns every handle in preorder, starting at the root.
func (t *Tree) Preorder() []NodeID {
	out := make([]NodeID, 0, len(t.nodes))
	for id := t.root; id != NoNode; id = t.Successor(id) {
		out = append(out, id)
	}
	return out
}

// Joint returns the joint with sequence number i.
func (t *Tree) Joint(i int) (*Node, error) {
	if i < 0 || i >= len(t.joints) {
		return nil, utils.NewIndexOutOfRangeError("joint", i, len(t.joints))
	}
	return t.nodes[t.joints[i]], nil
}

// Effector returns the effector with sequence number i.
func (t *Tree) Effector(i int) (*Node, error) {
	if i < 0 || i >= len(t.effectors) {
		return nil, utils.NewIndexOutOfRangeError("effector", i, len(t.effectors))
	}
	return t.nodes[t.effectors[i]], nil
}

// Compute runs forward kinematics over the whole tree. Parents are always visited before their children.
func (t *Tree) Compute() {
	for id := t.root; id != NoNode; id = t.Successor(id) {
		n := t.nodes[id]
		n.computeGlobal(t.node(n.parent))
	}
	t.dirty = false
}

// ComputeIfDirty runs Compute only if an angle or the structure changed since the last Compute.
func (t *Tree) ComputeIfDirty() {
	if t.dirty {
		t.Compute()
	}
}

// IsDirty reports whether cached global positions are stale.
func (t *Tree) IsDirty() bool { return t.dirty }

// Init returns every joint to its rest angle and recomputes.
func (t *Tree) Init() {
	for _, id := range t.joints {
		n := t.nodes[id]
		n.theta = n.restAngle
	}
	t.Compute()
}

// EffectorPosition returns the world position of effector i, recomputing stale positions first.
func (t *Tree) EffectorPosition(i int) (r3.Vector, error) {
	n, err := t.Effector(i)
	if err != nil {
		return r3.Vector{}, err
	}
	t.ComputeIfDirty()
	return n.s, nil
}

// EffectorPositions returns the world position of every effector in sequence order.
func (t *Tree) EffectorPositions() []r3.Vector {
	t.ComputeIfDirty()
	out := make([]r3.Vector, len(t.effectors))
	for i, id := range t.effectors {
		out[i] = t.nodes[id].s
	}
	return out
}

// UnFreeze unfreezes every joint.
func (t *Tree) UnFreeze() {
	for _, id := range t.joints {
		t.nodes[id].UnFreeze()
	}
}

// Thetas returns every joint angle in sequence order.
func (t *Tree) Thetas() []float64 {
	out := make([]float64, len(t.joints))
	for i, id := range t.joints {
		out[i] = t.nodes[id].theta
	}
	return out
}

// SetThetas sets every joint angle in sequence order. Angles are clamped to the joint limits.
func (t *Tree) SetThetas(thetas []float64) error {
	if len(thetas) != len(t.joints) {
		return utils.NewLengthMismatchError("joint angles", len(t.joints), len(thetas))
	}
	for i, id := range t.joints {
		t.nodes[id].SetTheta(thetas[i])
	}
	return nil
}

// Clone returns a deep copy of the tree. The copy shares no state with t.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		nodes:     make([]*Node, len(t.nodes)),
		root:      t.root,
		joints:    append([]NodeID(nil), t.joints...),
		effectors: append([]NodeID(nil), t.effectors...),
		dirty:     t.dirty,
	}
	for i, n := range t.nodes {
		nc := n.clone()
		nc.owner = c
		c.nodes[i] = nc
	}
	return c
}

// String prints a table of each node in preorder, with columns of name, purpose, parent, angle and position.
func (t *Tree) String() string {
	t.ComputeIfDirty()
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"#", "Name", "Type", "Seq", "Parent", "Theta (deg)", "Position", "Axis"})
	for _, id := range t.Preorder() {
		n := t.nodes[id]
		parent := ""
		if p := t.node(n.parent); p != nil {
			parent = p.name
		}
		seq, theta, axis := n.seqNumEffector, "", ""
		if n.IsJoint() {
			seq = n.seqNumJoint
			theta = fmt.Sprintf("%.2f", utils.RadToDeg(n.theta))
			axis = fmt.Sprintf("X:%.2f, Y:%.2f, Z:%.2f", n.w.X, n.w.Y, n.w.Z)
		}
		tw.AppendRow(table.Row{
			fmt.Sprintf("%d", id),
			n.name,
			n.purpose.String(),
			seq,
			parent,
			theta,
			fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", n.s.X, n.s.Y, n.s.Z),
			axis,
		})
	}
	return tw.Render()
}
