package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB columns: the snapshot and images are stored as jsonb and may be NULL.

func (s VehicleSnapshot) Value() (driver.Value, error) {
	return jsonValue(s)
}

func (s *VehicleSnapshot) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func (i VehicleImages) Value() (driver.Value, error) {
	return jsonValue(i)
}

func (i *VehicleImages) Scan(value interface{}) error {
	return scanJSON(value, i)
}

func (a PaymentAccount) Value() (driver.Value, error) {
	return jsonValue(a)
}

func (a *PaymentAccount) Scan(value interface{}) error {
	return scanJSON(value, a)
}

// Payload is an arbitrary event payload stored as jsonb.
type Payload map[string]interface{}

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	return jsonValue(p)
}

func (p *Payload) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// jsonValue returns text, lib/pq would send []byte as bytea.
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan type %T into %T", value, dst)
	}
}
