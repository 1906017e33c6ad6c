package skeleton

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/jacobik/utils"
)

// ModelConfigJSON represents all supported fields in a skeleton JSON file.
type ModelConfigJSON struct {
	Name  string       `json:"name"`
	Nodes []NodeConfig `json:"nodes"`
}

// NodeConfig describes one joint or effector. Positions and axes are world coordinates with every joint angle at
// 0, and Rest is applied on top of that pose; angles are in degrees. An empty Parent marks the root.
type NodeConfig struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Parent string    `json:"parent,omitempty"`
	Attach r3.Vector `json:"attach"`
	Axis   r3.Vector `json:"axis"`
	Min    *float64  `json:"min,omitempty"`
	Max    *float64  `json:"max,omitempty"`
	Rest   float64   `json:"rest,omitempty"`
}

// ToNode creates the node described by the config.
func (cfg *NodeConfig) ToNode() (*Node, error) {
	switch cfg.Type {
	case Joint.String():
		limit := Unbounded()
		if cfg.Min != nil {
			limit.Min = utils.DegToRad(*cfg.Min)
		}
		if cfg.Max != nil {
			limit.Max = utils.DegToRad(*cfg.Max)
		}
		if limit.Min > limit.Max {
			return nil, errors.Errorf("joint %q has min %.2f greater than max %.2f", cfg.ID, *cfg.Min, *cfg.Max)
		}
		return NewJointNode(cfg.ID, cfg.Attach, cfg.Axis, limit, utils.DegToRad(cfg.Rest))
	case Effector.String():
		return NewEffectorNode(cfg.ID, cfg.Attach), nil
	default:
		return nil, errors.Errorf("node %q has unsupported type %q, supported types are joint and effector", cfg.ID, cfg.Type)
	}
}

// UnmarshalModelJSON will parse the given JSON data into a tree at its rest pose.
func UnmarshalModelJSON(jsonData []byte) (*Tree, error) {
	// empty data probably means that the model has no kinematic information
	if len(jsonData) == 0 {
		return nil, ErrNoModelInformation
	}
	m := &ModelConfigJSON{}
	if err := json.Unmarshal(jsonData, m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}
	return m.ParseConfig()
}

// ParseModelJSONFile will read a given file and then parse the contained JSON data.
func ParseModelJSONFile(filename string) (*Tree, error) {
	//nolint:gosec
	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read json file")
	}
	return UnmarshalModelJSON(jsonData)
}

// ParseConfig builds the tree. Children are inserted in the order they appear in the file.
func (cfg *ModelConfigJSON) ParseConfig() (*Tree, error) {
	if len(cfg.Nodes) == 0 {
		return nil, ErrNoModelInformation
	}

	byID := map[string]*NodeConfig{}
	children := map[string][]string{}
	root := ""
	for i := range cfg.Nodes {
		nc := &cfg.Nodes[i]
		if nc.ID == "" {
			return nil, errors.Errorf("node %d has no id", i)
		}
		if _, ok := byID[nc.ID]; ok {
			return nil, errors.Errorf("duplicate node id %q", nc.ID)
		}
		byID[nc.ID] = nc
		if nc.Parent == "" {
			if root != "" {
				return nil, errors.Errorf("model has more than one root: %q and %q", root, nc.ID)
			}
			root = nc.ID
			continue
		}
		children[nc.Parent] = append(children[nc.Parent], nc.ID)
	}
	if root == "" {
		return nil, errors.New("model has no root node")
	}
	for parent := range children {
		if _, ok := byID[parent]; !ok {
			return nil, errors.Errorf("parent %q of %q not found", parent, children[parent][0])
		}
	}

	tree := NewTree()
	rootNode, err := byID[root].ToNode()
	if err != nil {
		return nil, err
	}
	rootID, err := tree.InsertRoot(rootNode)
	if err != nil {
		return nil, err
	}
	if err := insertChildren(tree, rootID, root, byID, children); err != nil {
		return nil, err
	}
	if tree.NumNode() != len(cfg.Nodes) {
		return nil, errors.Errorf("%d nodes are not connected to root %q", len(cfg.Nodes)-tree.NumNode(), root)
	}
	tree.Init()
	return tree, nil
}

func insertChildren(
	tree *Tree,
	parentID NodeID,
	parent string,
	byID map[string]*NodeConfig,
	children map[string][]string,
) error {
	prev := NoNode
	for _, childName := range children[parent] {
		n, err := byID[childName].ToNode()
		if err != nil {
			return err
		}
		var id NodeID
		if prev == NoNode {
			id, err = tree.InsertLeftChild(parentID, n)
		} else {
			id, err = tree.InsertRightSibling(prev, n)
		}
		if err != nil {
			return err
		}
		if err := insertChildren(tree, id, childName, byID, children); err != nil {
			return err
		}
		prev = id
	}
	return nil
}
