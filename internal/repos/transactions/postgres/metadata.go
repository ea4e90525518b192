package transactions

import (
	"encoding/json"
	"fmt"
)

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	return b, nil
}

func decodeMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var m map[string]any

	err := json.Unmarshal(b, &m)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return m, nil
}
