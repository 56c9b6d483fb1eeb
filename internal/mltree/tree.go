// Package mltree holds the two frozen decision-tree models: the entry
// classifier (second opinion on the security scorer) and the exit
// classifier (advisory SELL/HOLD over a position's sample series).
// Trees are immutable node tables built once at init; evaluation is a
// pure walk, so identical feature vectors always reach the same leaf.
package mltree

import "fmt"

// Label is a leaf prediction.
type Label string

const (
	LabelSafe Label = "safe"
	LabelRug  Label = "rug"
	LabelSell Label = "SELL"
	LabelHold Label = "HOLD"
)

// Leaf is a terminal node payload. NodeID identifies the leaf for
// offline evaluation of logged decisions.
type Leaf struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	NodeID     string  `json:"node_id"`
}

// Node is one threshold comparison. Feature indexes into the feature
// vector; values <= Threshold descend Left, otherwise Right. A node
// with a non-nil Leaf is terminal and its comparison fields are unused.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Leaf      *Leaf
}

// Metadata is the training provenance carried by each frozen model,
// attached to decisions so logged verdicts can be evaluated offline
// against the model that produced them.
type Metadata struct {
	Version         int      `json:"version"`
	TrainingSamples int      `json:"training_samples"`
	PositiveSamples int      `json:"positive_samples"`
	NegativeSamples int      `json:"negative_samples"`
	CVF1            float64  `json:"cv_f1"`
	TemporalF1      float64  `json:"temporal_f1"`
	FeatureNames    []string `json:"feature_names"`
}

// Tree is a frozen, versioned decision tree.
type Tree struct {
	version string
	meta    Metadata
	nodes   []Node
}

// NewTree validates the node table and returns an immutable tree.
// Child indices must point forward into the table so a walk can never
// cycle.
func NewTree(version string, meta Metadata, nodes []Node) (*Tree, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("mltree: %s: empty node table", version)
	}
	nFeatures := len(meta.FeatureNames)
	for i, n := range nodes {
		if n.Leaf != nil {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return nil, fmt.Errorf("mltree: %s: node %d references feature %d of %d", version, i, n.Feature, nFeatures)
		}
		if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
			return nil, fmt.Errorf("mltree: %s: node %d has out-of-order child index", version, i)
		}
	}
	return &Tree{version: version, meta: meta, nodes: nodes}, nil
}

// mustTree panics on an invalid node table. Only used for the baked-in
// model tables, which are validated by tests.
func mustTree(version string, meta Metadata, nodes []Node) *Tree {
	t, err := NewTree(version, meta, nodes)
	if err != nil {
		panic(err)
	}
	return t
}

// Version returns the model's version tag.
func (t *Tree) Version() string { return t.version }

// Meta returns the model's training provenance.
func (t *Tree) Meta() Metadata { return t.meta }

// Evaluate walks the tree for one feature vector and returns the leaf
// reached. The vector must have one entry per feature name in Meta.
func (t *Tree) Evaluate(features []float64) Leaf {
	i := 0
	for {
		n := t.nodes[i]
		if n.Leaf != nil {
			return *n.Leaf
		}
		if features[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
