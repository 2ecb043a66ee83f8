package ml

import (
	"sort"

	"github.com/spf13/cast"
)

// Encode converts every categorical value in raw to its label code. Unknown or
// absent categorical values take the fallback code; fields without a table
// pass through untouched. The second result lists the fields that fell back.
func (lt *LabelTables) Encode(raw RawRecord) (EncodedRecord, []string) {
	encoded := make(EncodedRecord, len(raw)+len(lt.tables))
	var fallbacks []string

	for key, value := range raw {
		enc, ok := lt.tables[key]
		if !ok {
			encoded[key] = value
			continue
		}
		if code, known := enc.Transform(categoryString(value)); known {
			encoded[key] = code
			continue
		}
		encoded[key] = lt.fallbackCodes[key]
		fallbacks = append(fallbacks, key)
	}

	for key, code := range lt.fallbackCodes {
		if _, ok := raw[key]; ok {
			continue
		}
		encoded[key] = code
		fallbacks = append(fallbacks, key)
	}

	sort.Strings(fallbacks)
	return encoded, fallbacks
}

// categoryString renders a raw value the way the training data spelled it.
func categoryString(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case nil:
		return ""
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return ""
	}
	return s
}
