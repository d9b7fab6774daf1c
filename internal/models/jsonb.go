package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// Limits is a plan's resource quota map stored as JSONB. JSON null values
// are dropped on decode so an explicit null reads the same as an absent key.
type Limits map[string]int

// Value implements the driver.Valuer interface for Limits
func (l Limits) Value() (driver.Value, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int(l))
}

// Scan implements the sql.Scanner interface for Limits
func (l *Limits) Scan(value interface{}) error {
	if value == nil {
		*l = Limits{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into Limits", value)
	}

	return l.UnmarshalJSON(bytes)
}

// UnmarshalJSON decodes a limits object, skipping null entries.
func (l *Limits) UnmarshalJSON(data []byte) error {
	var raw map[string]*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode limits: %w", err)
	}
	out := make(Limits, len(raw))
	for k, v := range raw {
		if v != nil {
			out[k] = *v
		}
	}
	*l = out
	return nil
}
