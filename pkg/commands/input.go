package commands

import (
	"bytes"
	"encoding/json"
	"strings"
)

// input is a command's decoded JSON object. A non-object input behaves as an empty
// object so required-field checks report the missing fields.
type input map[string]json.RawMessage

func parseInput(raw json.RawMessage) input {
	var in input
	if err := json.Unmarshal(raw, &in); err != nil || in == nil {
		return input{}
	}
	return in
}

// has reports whether key is present with a non-null value.
func (in input) has(key string) bool {
	v, ok := in[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (in input) hasAll(keys ...string) bool {
	for _, k := range keys {
		if !in.has(k) {
			return false
		}
	}
	return true
}

// str returns key as a non-empty string.
func (in input) str(key string) (string, bool) {
	v, ok := in[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// decode unmarshals key into dst. It returns false when key is absent or null.
func (in input) decode(key string, dst any) (bool, error) {
	if !in.has(key) {
		return false, nil
	}
	return true, json.Unmarshal(in[key], dst)
}
