package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func passengerRecord() RawRecord {
	return RawRecord{
		FieldHomePlanet:   "Earth",
		FieldCryoSleep:    "True",
		FieldCabin:        "F/1/S",
		FieldDestination:  "TRAPPIST-1e",
		FieldAge:          30.0,
		FieldVIP:          "False",
		FieldRoomService:  0.0,
		FieldFoodCourt:    0.0,
		FieldShoppingMall: 0.0,
		FieldSpa:          0.0,
		FieldVRDeck:       0.0,
	}
}

func writeCatBoostArtifact(t *testing.T, names []string) string {
	t.Helper()
	floatFeatures := make([]map[string]interface{}, len(names))
	for i, name := range names {
		floatFeatures[i] = map[string]interface{}{
			"feature_index":      i,
			"flat_feature_index": i,
			"feature_id":         name,
		}
	}
	artifact := map[string]interface{}{
		"features_info": map[string]interface{}{"float_features": floatFeatures},
		"oblivious_trees": []interface{}{
			map[string]interface{}{
				"leaf_values": []float64{-1, 2},
				"splits": []interface{}{
					map[string]interface{}{"float_feature_index": 1, "border": 0.5, "split_type": "FloatFeature"},
				},
			},
			map[string]interface{}{
				"leaf_values": []float64{0.1, 0.2, 0.3, -5},
				"splits": []interface{}{
					map[string]interface{}{"float_feature_index": 4, "border": 18.0, "split_type": "FloatFeature"},
					map[string]interface{}{"float_feature_index": 9, "border": 100.0, "split_type": "FloatFeature"},
				},
			},
		},
		"scale_and_bias": []interface{}{1, []float64{0}},
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}
