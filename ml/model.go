package ml

import (
	"errors"
	"fmt"
)

// Classifier is a pretrained binary model evaluated on one feature row.
type Classifier interface {
	// Predict returns the class label (0 or 1) and the probability of label 1.
	Predict(features []float64) (int, float64, error)
	// FeatureNames returns the column order the model was fitted on, or nil
	// when the artifact does not record it.
	FeatureNames() []string
	// NumFeatures returns the row width the model expects, or 0 if unknown.
	NumFeatures() int
}

type Prediction struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

func (p Prediction) Transported() bool {
	return p.Label == 1
}

// PredictFrame runs the model on a single-row frame and returns its only result.
func PredictFrame(model Classifier, frame Frame) (Prediction, error) {
	if model == nil {
		return Prediction{}, errors.New("model not loaded")
	}
	if err := CheckSchema(model, frame.Columns); err != nil {
		return Prediction{}, err
	}
	label, prob, err := model.Predict(frame.Row)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	return Prediction{Label: label, Probability: prob}, nil
}

// CheckSchema verifies that the model was fitted on exactly these columns in
// this order. Artifacts without names are checked by width only, and not at
// all when the width is unknown.
func CheckSchema(model Classifier, columns []string) error {
	if n := model.NumFeatures(); n > 0 && n != len(columns) {
		return fmt.Errorf("%w: model expects %d features, got %d", ErrSchemaMismatch, n, len(columns))
	}
	names := model.FeatureNames()
	if names == nil {
		return nil
	}
	if len(names) != len(columns) {
		return fmt.Errorf("%w: model names %d features, got %d", ErrSchemaMismatch, len(names), len(columns))
	}
	for i, name := range names {
		if columns[i] != name {
			return fmt.Errorf("%w: column %d is %s, model expects %s", ErrSchemaMismatch, i, columns[i], name)
		}
	}
	return nil
}
