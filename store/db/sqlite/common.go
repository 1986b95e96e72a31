package sqlite

import (
	"encoding/json"
	"strings"

	"github.com/officialmortgage/livbridge/store"
)

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(n int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

func marshalFlags(flags map[string]bool) (string, error) {
	if len(flags) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(flags)
	return string(b), err
}

func unmarshalFlags(raw string) (map[string]bool, error) {
	flags := map[string]bool{}
	if raw == "" {
		return flags, nil
	}
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return nil, err
	}
	return flags, nil
}

func marshalValuation(v *store.Valuation) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshalValuation(raw string) (*store.Valuation, error) {
	if raw == "" {
		return nil, nil
	}
	v := &store.Valuation{}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return nil, err
	}
	return v, nil
}
