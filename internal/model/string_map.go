package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap is stored as a JSON object column.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	return string(b), nil
}

func (m *StringMap) Scan(value any) error {
	var b []byte

	switch v := value.(type) {
	case nil:
		*m = StringMap{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("failed to scan StringMap, %v", value)
	}

	out := StringMap{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return fmt.Errorf("failed to scan StringMap, %w", err)
		}
	}

	*m = out
	return nil
}
