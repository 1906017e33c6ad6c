package skeleton

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/jacobik/spatialmath"
	"go.viam.com/jacobik/utils"
)

// NodeID is a handle to a node inside the Tree that owns it.
type NodeID int

// NoNode marks an absent parent, child or sibling link.
const NoNode NodeID = -1

// Purpose says whether a node is a rotational joint or an end effector.
type Purpose int

const (
	// Joint is a single axis revolute degree of freedom.
	Joint Purpose = iota
	// Effector is a point whose position is driven towards a target.
	Effector
)

func (p Purpose) String() string {
	switch p {
	case Joint:
		return "joint"
	case Effector:
		return "effector"
	default:
		return "unknown"
	}
}

// Limit represents the limits of motion for a joint, in radians.
type Limit struct {
	Min float64
	Max float64
}

// Unbounded returns a Limit that allows any angle.
func Unbounded() Limit {
	return Limit{Min: math.Inf(-1), Max: math.Inf(1)}
}

// IsBounded reports whether either end of the limit is finite.
func (l Limit) IsBounded() bool {
	return !math.IsInf(l.Min, -1) || !math.IsInf(l.Max, 1)
}

// Clamp restricts theta to the limit.
func (l Limit) Clamp(theta float64) float64 {
	return utils.Clamp(theta, l.Min, l.Max)
}

// Node is a joint or an end effector. Attach point and axis are given in world coordinates for the zero pose,
// where every joint angle is 0; rest angles are applied on top of it. Nodes are owned by a Tree and linked by
// handles.
type Node struct {
	name    string
	purpose Purpose

	attach    r3.Vector
	axis      r3.Vector
	r         r3.Vector
	theta     float64
	restAngle float64
	limit     Limit
	frozen    bool

	s   r3.Vector
	w   r3.Vector
	rot quat.Number

	seqNumJoint    int
	seqNumEffector int

	id     NodeID
	parent NodeID
	left   NodeID
	right  NodeID
	owner  *Tree
}

// NewJointNode creates a revolute joint rotating about axis through attach. The joint starts at restAngle.
func NewJointNode(name string, attach, axis r3.Vector, limit Limit, restAngle float64) (*Node, error) {
	if axis.Norm2() == 0 {
		return nil, NewZeroAxisError(name)
	}
	n := newNode(name, Joint, attach)
	n.axis = axis.Normalize()
	n.w = n.axis
	n.limit = limit
	n.restAngle = limit.Clamp(restAngle)
	n.theta = n.restAngle
	return n, nil
}

// NewEffectorNode creates an end effector at attach.
func NewEffectorNode(name string, attach r3.Vector) *Node {
	return newNode(name, Effector, attach)
}

func newNode(name string, purpose Purpose, attach r3.Vector) *Node {
	return &Node{
		name:           name,
		purpose:        purpose,
		attach:         attach,
		r:              attach,
		s:              attach,
		rot:            spatialmath.QuatIdentity(),
		limit:          Unbounded(),
		seqNumJoint:    -1,
		seqNumEffector: -1,
		id:             NoNode,
		parent:         NoNode,
		left:           NoNode,
		right:          NoNode,
	}
}

// Name returns the name of the node.
func (n *Node) Name() string { return n.name }

// Purpose returns whether the node is a joint or an effector.
func (n *Node) Purpose() Purpose { return n.purpose }

// IsJoint reports whether the node is a joint.
func (n *Node) IsJoint() bool { return n.purpose == Joint }

// IsEffector reports whether the node is an effector.
func (n *Node) IsEffector() bool { return n.purpose == Effector }

// ID returns the handle of the node in its tree, or NoNode if it has not been inserted.
func (n *Node) ID() NodeID { return n.id }

// JointNum is the joint sequence number, -1 for effectors.
func (n *Node) JointNum() int { return n.seqNumJoint }

// EffectorNum is the effector sequence number, -1 for joints.
func (n *Node) EffectorNum() int { return n.seqNumEffector }

// Attach returns the zero pose position.
func (n *Node) Attach() r3.Vector { return n.attach }

// RestAxis returns the unit rotation axis in the zero pose.
func (n *Node) RestAxis() r3.Vector { return n.axis }

// RelativePosition returns the zero pose offset from the parent's attach point.
func (n *Node) RelativePosition() r3.Vector { return n.r }

// Theta returns the joint angle.
func (n *Node) Theta() float64 { return n.theta }

// RestAngle returns the angle the joint returns to on Init.
func (n *Node) RestAngle() float64 { return n.restAngle }

// Limit returns the range of motion.
func (n *Node) Limit() Limit { return n.limit }

// HasLimits reports whether the joint range is bounded.
func (n *Node) HasLimits() bool { return n.limit.IsBounded() }

// SetTheta sets the joint angle, clamped to the joint limits, and returns the stored value.
// The owning tree is marked as needing a recompute.
func (n *Node) SetTheta(theta float64) float64 {
	if n.purpose != Joint {
		return 0
	}
	n.theta = n.limit.Clamp(theta)
	n.markDirty()
	return n.theta
}

// AddToTheta adds delta to the joint angle and returns the stored value.
func (n *Node) AddToTheta(delta float64) float64 {
	return n.SetTheta(n.theta + delta)
}

// Freeze excludes the joint from the Jacobian.
func (n *Node) Freeze() { n.frozen = true }

// UnFreeze includes the joint in the Jacobian again.
func (n *Node) UnFreeze() { n.frozen = false }

// IsFrozen reports whether the joint is frozen.
func (n *Node) IsFrozen() bool { return n.frozen }

// GlobalPosition returns the world position computed by the last Tree.Compute.
func (n *Node) GlobalPosition() r3.Vector { return n.s }

// GlobalAxis returns the world rotation axis computed by the last Tree.Compute.
func (n *Node) GlobalAxis() r3.Vector { return n.w }

// GlobalRotation returns the rotation from the zero pose to the current pose of the node's frame.
func (n *Node) GlobalRotation() quat.Number { return n.rot }

// GlobalRotationMatrix returns GlobalRotation as a rotation matrix.
func (n *Node) GlobalRotationMatrix() mgl64.Mat3 { return spatialmath.QuatToMat3(n.rot) }

// localRotation is the rotation this joint applies to everything below it.
func (n *Node) localRotation() quat.Number {
	if n.purpose != Joint {
		return spatialmath.QuatIdentity()
	}
	return spatialmath.RotationAbout(n.axis, n.theta)
}

// computeGlobal updates s, w and the global rotation from an up to date parent, or from the world frame for a
// root.
func (n *Node) computeGlobal(parent *Node) {
	if parent == nil {
		n.rot = spatialmath.QuatIdentity()
		n.s = n.r
	} else {
		n.rot = spatialmath.Compose(parent.rot, parent.localRotation())
		n.s = parent.s.Add(spatialmath.RotateVector(n.rot, n.r))
	}
	if n.purpose == Joint {
		n.w = spatialmath.RotateVector(n.rot, n.axis)
	}
}

func (n *Node) markDirty() {
	if n.owner != nil {
		n.owner.dirty = true
	}
}

func (n *Node) clone() *Node {
	c := *n
	c.owner = nil
	return &c
}
