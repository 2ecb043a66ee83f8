package ml

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

const (
	FieldHomePlanet   = "HomePlanet"
	FieldCryoSleep    = "CryoSleep"
	FieldCabin        = "Cabin"
	FieldDestination  = "Destination"
	FieldAge          = "Age"
	FieldVIP          = "VIP"
	FieldRoomService  = "RoomService"
	FieldFoodCourt    = "FoodCourt"
	FieldShoppingMall = "ShoppingMall"
	FieldSpa          = "Spa"
	FieldVRDeck       = "VRDeck"
)

var ErrSchemaMismatch = errors.New("schema mismatch")

// RawRecord holds user supplied values keyed by field name. Yes/no answers
// are stored as "True"/"False".
type RawRecord map[string]any

// EncodedRecord holds integer codes for categorical fields and the untouched
// raw value for every other field.
type EncodedRecord map[string]any

// FeatureNames returns the column order the pretrained model was fitted on.
func FeatureNames() []string {
	return []string{
		FieldHomePlanet,
		FieldCryoSleep,
		FieldCabin,
		FieldDestination,
		FieldAge,
		FieldVIP,
		FieldRoomService,
		FieldFoodCourt,
		FieldShoppingMall,
		FieldSpa,
		FieldVRDeck,
	}
}

func CategoricalFields() []string {
	return []string{
		FieldHomePlanet,
		FieldCryoSleep,
		FieldCabin,
		FieldDestination,
		FieldVIP,
	}
}

func NumericFields() []string {
	return []string{
		FieldAge,
		FieldRoomService,
		FieldFoodCourt,
		FieldShoppingMall,
		FieldSpa,
		FieldVRDeck,
	}
}

// Frame is a single-row table handed to a model.
type Frame struct {
	Columns []string
	Row     []float64
}

// NewFrame lays the encoded record out in the given column order.
func NewFrame(record EncodedRecord, columns []string) (Frame, error) {
	if len(columns) == 0 {
		return Frame{}, fmt.Errorf("%w: no columns", ErrSchemaMismatch)
	}
	row := make([]float64, len(columns))
	for i, name := range columns {
		value, ok := record[name]
		if !ok {
			return Frame{}, fmt.Errorf("%w: missing column %s", ErrSchemaMismatch, name)
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: column %s is not numeric: %v", ErrSchemaMismatch, name, err)
		}
		row[i] = f
	}
	cols := append([]string(nil), columns...)
	return Frame{Columns: cols, Row: row}, nil
}

// Value returns the value of a named column.
func (f Frame) Value(name string) (float64, bool) {
	for i, col := range f.Columns {
		if col == name {
			return f.Row[i], true
		}
	}
	return 0, false
}
