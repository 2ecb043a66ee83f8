package ml

import (
	"errors"
	"sort"
)

// LabelEncoder maps category strings to the index of the string in its
// sorted, de-duplicated class list.
type LabelEncoder struct {
	classes []string
	codes   map[string]int
}

// FitLabelEncoder builds an encoder from the given classes.
func FitLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, errors.New("classes is empty")
	}
	unique := make(map[string]struct{}, len(classes))
	sorted := make([]string, 0, len(classes))
	for _, c := range classes {
		if _, ok := unique[c]; ok {
			continue
		}
		unique[c] = struct{}{}
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	codes := make(map[string]int, len(sorted))
	for i, c := range sorted {
		codes[c] = i
	}
	return &LabelEncoder{classes: sorted, codes: codes}, nil
}

func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *LabelEncoder) Contains(value string) bool {
	_, ok := e.codes[value]
	return ok
}

// Transform returns the code for value and whether value is a known class.
func (e *LabelEncoder) Transform(value string) (int, bool) {
	code, ok := e.codes[value]
	return code, ok
}

func (e *LabelEncoder) Len() int {
	return len(e.classes)
}
