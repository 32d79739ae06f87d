package statevec

import (
	"fmt"
	"time"
)

// #region schema-methods

// Has reports whether the schema declares the named field.
func (s Schema) Has(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// DefaultOf returns the configured default for the named field (0 if the
// field is not declared; callers validate names before asking).
func (s Schema) DefaultOf(name string) float64 {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Default
		}
	}
	return 0
}

// Validate checks the schema for duplicate or empty field names.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: schema has no fields", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidInput)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidInput, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// #endregion schema-methods

// #region vector

// Vector is an immutable snapshot of named signal values at one instant.
// Construct via New; absent fields resolve to the schema default so the
// change detector never sees a missing field.
type Vector struct {
	schemaVersion int
	order         []string
	values        map[string]float64
	observedAt    time.Time
}

// New builds a Vector from the given values. Unknown field names are
// rejected with ErrInvalidInput; fields absent from values are filled
// from the schema default.
func New(schema Schema, values map[string]float64, observedAt time.Time) (Vector, error) {
	if err := schema.Validate(); err != nil {
		return Vector{}, err
	}
	for name := range values {
		if !schema.Has(name) {
			return Vector{}, fmt.Errorf("%w: unknown field %q", ErrInvalidInput, name)
		}
	}
	order := make([]string, len(schema.Fields))
	resolved := make(map[string]float64, len(schema.Fields))
	for i, f := range schema.Fields {
		order[i] = f.Name
		if v, ok := values[f.Name]; ok {
			resolved[f.Name] = v
		} else {
			resolved[f.Name] = f.Default
		}
	}
	return Vector{
		schemaVersion: schema.Version,
		order:         order,
		values:        resolved,
		observedAt:    observedAt,
	}, nil
}

// SchemaVersion returns the schema version the vector was built against.
func (v Vector) SchemaVersion() int { return v.schemaVersion }

// ObservedAt returns the observation timestamp.
func (v Vector) ObservedAt() time.Time { return v.observedAt }

// Get returns the value for a field and whether the field exists.
func (v Vector) Get(name string) (float64, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Fields returns field names in schema declaration order.
func (v Vector) Fields() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Values returns a copy of the field values keyed by name.
func (v Vector) Values() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// IsZero reports whether the vector was never constructed via New.
func (v Vector) IsZero() bool { return v.values == nil }

// #endregion vector
