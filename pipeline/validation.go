package pipeline

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"spacepredict/ml"
)

var ErrInvalidInput = errors.New("invalid input")

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors 收集一次提交中的全部字段错误
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return ErrInvalidInput
}

// Field returns the message for one field, if any.
func (v ValidationErrors) Field(name string) string {
	for _, fe := range v {
		if fe.Field == name {
			return fe.Message
		}
	}
	return ""
}

var folder = cases.Fold()

// HomePlanetOptions 可选的出发星球, 按提示顺序
func HomePlanetOptions() []string {
	return []string{"Europa", "Earth", "Mars"}
}

// DestinationOptions 可选的目的地, 按提示顺序
func DestinationOptions() []string {
	return []string{"TRAPPIST-1e", "55 Cancri e", "PSO J318.5-22"}
}

// NormalizeText trims and NFC-normalises free text.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ParseYesNo maps yes/no (any case) to "True"/"False".
func ParseYesNo(s string) (string, bool) {
	switch folder.String(strings.TrimSpace(s)) {
	case "yes":
		return "True", true
	case "no":
		return "False", true
	}
	return "", false
}

// ParseAmount parses a numeric answer. NaN and Inf are rejected since they
// cannot be journaled as JSON.
func ParseAmount(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}

// CheckOption reports whether value is one of options.
func CheckOption(value string, options []string) bool {
	return slices.Contains(options, value)
}

// OptionsMessage renders the rejection shown for a value outside options.
func OptionsMessage(options []string) string {
	quoted := make([]string, len(options))
	for i, o := range options {
		quoted[i] = "'" + o + "'"
	}
	return "Invalid. Choose from [" + strings.Join(quoted, ", ") + "]"
}

// ParseForm collects every passenger field from a submitted form.
func ParseForm(values url.Values) (ml.RawRecord, error) {
	input := make(map[string]any, len(ml.FeatureNames()))
	for _, name := range ml.FeatureNames() {
		if v, ok := values[name]; ok && len(v) > 0 {
			input[name] = v[0]
		}
	}
	return NormalizeRecord(input)
}

// NormalizeRecord validates loosely typed input (form values or decoded JSON)
// and returns the canonical raw record both front-ends feed to the encoder.
func NormalizeRecord(input map[string]any) (ml.RawRecord, error) {
	raw := make(ml.RawRecord, len(ml.FeatureNames()))
	var errs ValidationErrors

	choice := func(field string, options []string) {
		s, ok := textValue(input[field])
		if !ok {
			errs = append(errs, FieldError{field, "is required"})
			return
		}
		if !CheckOption(s, options) {
			errs = append(errs, FieldError{field, OptionsMessage(options)})
			return
		}
		raw[field] = s
	}
	yesNo := func(field string) {
		switch v := input[field].(type) {
		case bool:
			if v {
				raw[field] = "True"
			} else {
				raw[field] = "False"
			}
			return
		case string:
			if canonical, ok := ParseYesNo(v); ok {
				raw[field] = canonical
				return
			}
			if v == "True" || v == "False" {
				raw[field] = v
				return
			}
		}
		errs = append(errs, FieldError{field, "Enter yes or no."})
	}
	amount := func(field string) {
		var (
			f   float64
			err error
		)
		switch v := input[field].(type) {
		case nil:
			errs = append(errs, FieldError{field, "is required"})
			return
		case string:
			f, err = ParseAmount(v)
		case bool:
			err = fmt.Errorf("boolean %v", v)
		default:
			f, err = cast.ToFloat64E(v)
		}
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			errs = append(errs, FieldError{field, "Invalid number. Try again."})
			return
		}
		raw[field] = f
	}

	choice(ml.FieldHomePlanet, HomePlanetOptions())
	yesNo(ml.FieldCryoSleep)
	// Cabin is free text; a blank or absent cabin encodes to the fallback.
	switch v := input[ml.FieldCabin].(type) {
	case nil:
	case string:
		raw[ml.FieldCabin] = NormalizeText(v)
	default:
		errs = append(errs, FieldError{ml.FieldCabin, "must be text"})
	}
	choice(ml.FieldDestination, DestinationOptions())
	amount(ml.FieldAge)
	yesNo(ml.FieldVIP)
	amount(ml.FieldRoomService)
	amount(ml.FieldFoodCourt)
	amount(ml.FieldShoppingMall)
	amount(ml.FieldSpa)
	amount(ml.FieldVRDeck)

	if len(errs) > 0 {
		return nil, errs
	}
	return raw, nil
}

func textValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = NormalizeText(s)
	return s, s != ""
}
