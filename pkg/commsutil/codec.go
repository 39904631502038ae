package commsutil

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a message body to JSON.
func EncodePayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("commsutil:codec - encode: %w", err)
	}
	return data, nil
}

// DecodePayload deserializes a JSON message body into v.
func DecodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("commsutil:codec - decode: %w", err)
	}
	return nil
}
