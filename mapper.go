package client

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

type fieldKind int

const (
	identityField fieldKind = iota + 1
	timestampField
	propertyField
)

// FieldMapping describes how one member of T contributes to a [DeviceRecord].
// Build mappings with [IdentityField], [TimestampField] and [PropertyField].
type FieldMapping[T any] struct {
	kind      fieldKind
	member    string
	name      string
	named     bool
	value     func(T) any
	timestamp func(T) *time.Time
}

// IdentityField marks the member whose value identifies the device. The value
// is converted to a string; a nil value fails the mapping.
func IdentityField[T any](member string, get func(T) any) FieldMapping[T] {
	return FieldMapping[T]{kind: identityField, member: member, value: get}
}

// TimestampField marks the member holding the optional record timestamp.
func TimestampField[T any](member string, get func(T) *time.Time) FieldMapping[T] {
	return FieldMapping[T]{kind: timestampField, member: member, timestamp: get}
}

// PropertyField marks a member sent as a device property. The property key is
// the member name unless overridden with [FieldMapping.Named].
func PropertyField[T any](member string, get func(T) any) FieldMapping[T] {
	return FieldMapping[T]{kind: propertyField, member: member, value: get}
}

// Named overrides the property key. An empty name keeps the member name.
func (f FieldMapping[T]) Named(name string) FieldMapping[T] {
	f.name = name
	f.named = true

	return f
}

func (f FieldMapping[T]) key() string {
	if f.name != "" {
		return f.name
	}

	return f.member
}

// Mapper converts values of T into device records. The field layout is checked
// once by [NewMapper] and reused for every value.
type Mapper[T any] struct {
	typeName   string
	identity   FieldMapping[T]
	timestamp  *FieldMapping[T]
	properties []FieldMapping[T]
}

// NewMapper checks the field layout of T: exactly one identity member, at
// most one timestamp member, and unique property keys.
func NewMapper[T any](fields ...FieldMapping[T]) (*Mapper[T], error) {
	m := &Mapper[T]{typeName: reflect.TypeOf((*T)(nil)).Elem().String()}

	var identities int

	keys := make(map[string]struct{})

	for i, f := range fields {
		f := f
		if f.member == "" {
			return nil, newValidationError(m.typeName, "field %d has no member name", i)
		}

		if f.named && f.kind != propertyField {
			return nil, newValidationError(m.typeName, "name override on %q only applies to property members", f.member)
		}

		switch f.kind {
		case identityField:
			if f.value == nil {
				return nil, newValidationError(m.typeName, "identity member %q has no getter", f.member)
			}

			identities++
			m.identity = f
		case timestampField:
			if f.timestamp == nil {
				return nil, newValidationError(m.typeName, "timestamp member %q has no getter", f.member)
			}

			if m.timestamp != nil {
				return nil, newValidationError(m.typeName, "must have at most one timestamp member")
			}

			m.timestamp = &f
		case propertyField:
			if f.value == nil {
				return nil, newValidationError(m.typeName, "property member %q has no getter", f.member)
			}

			key := f.key()
			if _, ok := keys[key]; ok {
				return nil, newValidationError(m.typeName, "duplicate property name %q", key)
			}

			keys[key] = struct{}{}
			m.properties = append(m.properties, f)
		default:
			return nil, newValidationError(m.typeName, "field %q has no role", f.member)
		}
	}

	switch {
	case identities == 0:
		return nil, newValidationError(m.typeName, "must have an identity member")
	case identities > 1:
		return nil, newValidationError(m.typeName, "must have exactly one identity member")
	}

	return m, nil
}

// Record maps v. Pointer property values are dereferenced; nil values are
// left out of the record.
func (m *Mapper[T]) Record(v T) (DeviceRecord, error) {
	if err := m.check(); err != nil {
		return DeviceRecord{}, err
	}

	id, ok := identityString(m.identity.value(v))
	if !ok {
		return DeviceRecord{}, newValidationError(m.typeName, "identity member %q is nil", m.identity.member)
	}

	var timestamp *time.Time
	if m.timestamp != nil {
		timestamp = m.timestamp.timestamp(v)
	}

	properties := make([]Property, 0, len(m.properties))

	for _, f := range m.properties {
		value, ok := indirect(f.value(v))
		if !ok {
			continue
		}

		properties = append(properties, Property{Name: f.key(), Value: value})
	}

	return NewDeviceRecord(id, timestamp, properties...), nil
}

// Records maps every value in order.
func (m *Mapper[T]) Records(values []T) ([]DeviceRecord, error) {
	if err := m.check(); err != nil {
		return nil, err
	}

	records := make([]DeviceRecord, 0, len(values))

	for i, v := range values {
		record, err := m.Record(v)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}

		records = append(records, record)
	}

	return records, nil
}

// check rejects a nil Mapper and one that was not built by [NewMapper].
func (m *Mapper[T]) check() error {
	if m == nil {
		return newValidationError("mapper", "must not be nil")
	}

	if m.identity.value == nil {
		return newValidationError("mapper", "not initialised, use NewMapper")
	}

	return nil
}

// IngestObject maps v with m and ingests the resulting record.
func IngestObject[T any](ctx context.Context, c *Client, m *Mapper[T], v T) error {
	record, err := m.Record(v)
	if err != nil {
		return err
	}

	return c.IngestDevice(ctx, record)
}

// IngestObjects maps every value with m and ingests the records in batches.
func IngestObjects[T any](ctx context.Context, c *Client, m *Mapper[T], values []T) error {
	records, err := m.Records(values)
	if err != nil {
		return err
	}

	return c.IngestDevices(ctx, records)
}

func identityString(v any) (string, bool) {
	if s, ok := v.(fmt.Stringer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", false
		}

		return s.String(), true
	}

	value, ok := indirect(v)
	if !ok {
		return "", false
	}

	return fmt.Sprint(value), true
}

// indirect follows pointers to the underlying value.
func indirect(v any) (any, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v, true
	}

	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}

		rv = rv.Elem()
	}

	return rv.Interface(), true
}
