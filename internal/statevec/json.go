package statevec

import (
	"encoding/json"
	"time"
)

// #region json

type vectorJSON struct {
	SchemaVersion int                `json:"schema_version"`
	Order         []string           `json:"order"`
	Values        map[string]float64 `json:"values"`
	ObservedAt    time.Time          `json:"observed_at"`
}

// MarshalJSON encodes the vector with its field order so a decoded vector
// iterates identically.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(vectorJSON{
		SchemaVersion: v.schemaVersion,
		Order:         v.order,
		Values:        v.values,
		ObservedAt:    v.observedAt,
	})
}

// UnmarshalJSON rebuilds a vector previously encoded with MarshalJSON.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var raw vectorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.schemaVersion = raw.SchemaVersion
	v.order = raw.Order
	v.values = raw.Values
	v.observedAt = raw.ObservedAt
	return nil
}

// #endregion json
