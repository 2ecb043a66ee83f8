package ml

import (
	"errors"
	"fmt"
)

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeCatBoostJSON = "catboost_json"
)

var ErrUnsupportedModel = errors.New("unsupported model type")

func LoadModel(modelType, path string) (Classifier, error) {
	switch modelType {
	case ModelTypeDecisionTree:
		model := &DecisionTree{}
		if err := model.Load(path); err != nil {
			return nil, fmt.Errorf("load decision tree %s: %w", path, err)
		}
		return model, nil
	case ModelTypeCatBoostJSON, "catboost", "":
		model := &CatBoostModel{}
		if err := model.Load(path); err != nil {
			return nil, fmt.Errorf("load catboost model %s: %w", path, err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, modelType)
	}
}

// LoadPassengerModel loads an artifact and rejects it unless it matches the
// passenger column layout.
func LoadPassengerModel(modelType, path string) (Classifier, error) {
	model, err := LoadModel(modelType, path)
	if err != nil {
		return nil, err
	}
	if err := CheckSchema(model, FeatureNames()); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return model, nil
}
