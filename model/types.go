package model

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/twinmcp/gateway/auth"
)

// JSONStringSlice stores a string slice as JSON in the database.
type JSONStringSlice []string

// Value converts the JSONStringSlice into a driver value.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal([]string(s))
	if err != nil {
		return nil, errors.Wrap(err, "marshal json string slice")
	}
	return string(payload), nil
}

// Scan populates the JSONStringSlice from a database value.
func (s *JSONStringSlice) Scan(value any) error {
	if s == nil {
		return errors.New("json string slice scan: nil receiver")
	}
	data, err := jsonColumnBytes(value)
	if err != nil {
		return errors.Wrap(err, "json string slice scan")
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}

	var decoded []string
	if err := json.Unmarshal(data, &decoded); err != nil {
		return errors.Wrap(err, "unmarshal json string slice")
	}
	if len(decoded) == 0 {
		*s = nil
		return nil
	}
	*s = JSONStringSlice(decoded)
	return nil
}

// JSONPermissions stores a permission set as JSON in the database.
type JSONPermissions []auth.Permission

// Value converts the JSONPermissions into a driver value.
func (p JSONPermissions) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal([]auth.Permission(p))
	if err != nil {
		return nil, errors.Wrap(err, "marshal json permissions")
	}
	return string(payload), nil
}

// Scan populates the JSONPermissions from a database value.
func (p *JSONPermissions) Scan(value any) error {
	if p == nil {
		return errors.New("json permissions scan: nil receiver")
	}
	data, err := jsonColumnBytes(value)
	if err != nil {
		return errors.Wrap(err, "json permissions scan")
	}
	if len(data) == 0 {
		*p = nil
		return nil
	}

	var decoded []auth.Permission
	if err := json.Unmarshal(data, &decoded); err != nil {
		return errors.Wrap(err, "unmarshal json permissions")
	}
	if len(decoded) == 0 {
		*p = nil
		return nil
	}
	*p = JSONPermissions(decoded)
	return nil
}

// jsonColumnBytes normalizes the raw driver value of a JSON text column.
func jsonColumnBytes(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.Errorf("unsupported column type %T", value)
	}
}
