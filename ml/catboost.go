package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

// CatBoostModel evaluates the JSON export of a CatBoost binary classifier
// trained on float features only.
type CatBoostModel struct {
	featureNames []string
	trees        []obliviousTree
	scale        float64
	bias         float64
}

type obliviousTree struct {
	splits     []treeSplit
	leafValues []float64
}

type treeSplit struct {
	feature int
	border  float64
}

type catBoostArtifact struct {
	FeaturesInfo struct {
		FloatFeatures []struct {
			FeatureIndex     int    `json:"feature_index"`
			FlatFeatureIndex int    `json:"flat_feature_index"`
			FeatureID        string `json:"feature_id"`
		} `json:"float_features"`
	} `json:"features_info"`
	ObliviousTrees []struct {
		LeafValues []float64 `json:"leaf_values"`
		Splits     []struct {
			FloatFeatureIndex int     `json:"float_feature_index"`
			Border            float64 `json:"border"`
			SplitType         string  `json:"split_type"`
		} `json:"splits"`
	} `json:"oblivious_trees"`
	ScaleAndBias []json.RawMessage `json:"scale_and_bias"`
}

func (m *CatBoostModel) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact catBoostArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return err
	}
	if len(artifact.ObliviousTrees) == 0 {
		return errors.New("artifact has no trees")
	}

	features := artifact.FeaturesInfo.FloatFeatures
	sort.Slice(features, func(i, j int) bool {
		return features[i].FeatureIndex < features[j].FeatureIndex
	})
	names := make([]string, len(features))
	for i, f := range features {
		if f.FeatureIndex != i {
			return fmt.Errorf("float feature indices are not contiguous at %d", i)
		}
		names[i] = f.FeatureID
	}

	trees := make([]obliviousTree, len(artifact.ObliviousTrees))
	for i, t := range artifact.ObliviousTrees {
		if len(t.LeafValues) != 1<<len(t.Splits) {
			return fmt.Errorf("tree %d: %d leaves for depth %d", i, len(t.LeafValues), len(t.Splits))
		}
		splits := make([]treeSplit, len(t.Splits))
		for j, s := range t.Splits {
			if s.SplitType != "" && s.SplitType != "FloatFeature" {
				return fmt.Errorf("tree %d: unsupported split type %s", i, s.SplitType)
			}
			if s.FloatFeatureIndex < 0 || s.FloatFeatureIndex >= len(names) {
				return fmt.Errorf("tree %d: feature index %d out of range", i, s.FloatFeatureIndex)
			}
			splits[j] = treeSplit{feature: s.FloatFeatureIndex, border: s.Border}
		}
		trees[i] = obliviousTree{splits: splits, leafValues: t.LeafValues}
	}

	scale, bias, err := parseScaleAndBias(artifact.ScaleAndBias)
	if err != nil {
		return err
	}

	m.featureNames = names
	m.trees = trees
	m.scale = scale
	m.bias = bias
	return nil
}

func (m *CatBoostModel) Predict(features []float64) (int, float64, error) {
	if len(m.trees) == 0 {
		return 0, 0, errors.New("model not loaded")
	}
	if len(features) != len(m.featureNames) {
		return 0, 0, fmt.Errorf("expected %d features, got %d", len(m.featureNames), len(features))
	}
	sum := 0.0
	for _, tree := range m.trees {
		idx := 0
		for depth, split := range tree.splits {
			if features[split.feature] > split.border {
				idx |= 1 << depth
			}
		}
		sum += tree.leafValues[idx]
	}
	raw := m.scale*sum + m.bias
	prob := 1 / (1 + math.Exp(-raw))
	if prob > 0.5 {
		return 1, prob, nil
	}
	return 0, prob, nil
}

func (m *CatBoostModel) FeatureNames() []string {
	return append([]string(nil), m.featureNames...)
}

func (m *CatBoostModel) NumFeatures() int {
	return len(m.featureNames)
}

// parseScaleAndBias reads [scale, [bias]]; older exports write [scale, bias].
func parseScaleAndBias(raw []json.RawMessage) (float64, float64, error) {
	if len(raw) == 0 {
		return 1, 0, nil
	}
	if len(raw) != 2 {
		return 0, 0, errors.New("scale_and_bias must have two elements")
	}
	var scale float64
	if err := json.Unmarshal(raw[0], &scale); err != nil {
		return 0, 0, fmt.Errorf("scale: %w", err)
	}
	var biases []float64
	if err := json.Unmarshal(raw[1], &biases); err == nil {
		if len(biases) != 1 {
			return 0, 0, errors.New("only single-dimension bias is supported")
		}
		return scale, biases[0], nil
	}
	var bias float64
	if err := json.Unmarshal(raw[1], &bias); err != nil {
		return 0, 0, fmt.Errorf("bias: %w", err)
	}
	return scale, bias, nil
}
