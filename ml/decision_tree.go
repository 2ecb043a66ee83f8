package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
)

type DecisionTree struct {
	featureNames []string
	nodes        []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
	// Probability of label 1 at a leaf. Absent in older artifacts.
	Probability *float64 `json:"probability,omitempty"`
}

type treeArtifact struct {
	FeatureNames []string   `json:"feature_names,omitempty"`
	Nodes        []TreeNode `json:"nodes"`
}

func NewDecisionTree(featureNames []string, nodes []TreeNode) *DecisionTree {
	return &DecisionTree{
		featureNames: append([]string(nil), featureNames...),
		nodes:        append([]TreeNode(nil), nodes...),
	}
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, errors.New("model not loaded")
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, leafProbability(node), nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, 0, errors.New("invalid tree state")
		}
	}
	return 0, 0, errors.New("tree contains a cycle")
}

func (dt *DecisionTree) FeatureNames() []string {
	if dt.featureNames == nil {
		return nil
	}
	return append([]string(nil), dt.featureNames...)
}

func (dt *DecisionTree) NumFeatures() int {
	return len(dt.featureNames)
}

// Load accepts the wrapped artifact and the bare node list written by older
// versions.
func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	payload = bytes.TrimSpace(payload)

	var artifact treeArtifact
	if bytes.HasPrefix(payload, []byte("[")) {
		if err := json.Unmarshal(payload, &artifact.Nodes); err != nil {
			return err
		}
	} else if err := json.Unmarshal(payload, &artifact); err != nil {
		return err
	}
	if len(artifact.Nodes) == 0 {
		return errors.New("artifact has no nodes")
	}
	dt.featureNames = artifact.FeatureNames
	dt.nodes = artifact.Nodes
	return nil
}

func leafProbability(node TreeNode) float64 {
	if node.Probability != nil {
		return *node.Probability
	}
	if node.ClassLabel == 1 {
		return 1
	}
	return 0
}
