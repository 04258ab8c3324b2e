package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
)

const (
	idKey        = "$id"
	timestampKey = "$ts"
)

// Property is one named value of a [DeviceRecord].
type Property struct {
	Name  string
	Value any
}

// DeviceRecord is a single telemetry snapshot of one device. Records are
// immutable; build them with [NewDeviceRecord] or a [Mapper].
type DeviceRecord struct {
	id         string
	timestamp  *time.Time
	properties []Property
}

// NewDeviceRecord returns a record for device id. A nil timestamp lets the
// service stamp the record on arrival. Properties keep the given order on the
// wire. The record is not validated until it is ingested or
// [DeviceRecord.Validate] is called.
func NewDeviceRecord(id string, timestamp *time.Time, properties ...Property) DeviceRecord {
	record := DeviceRecord{
		id:         id,
		properties: slices.Clone(properties),
	}

	if timestamp != nil {
		ts := *timestamp
		record.timestamp = &ts
	}

	return record
}

// PropertiesFromMap converts m into properties ordered by name.
func PropertiesFromMap(m map[string]any) []Property {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	properties := make([]Property, 0, len(names))
	for _, name := range names {
		properties = append(properties, Property{Name: name, Value: m[name]})
	}

	return properties
}

func (r DeviceRecord) ID() string {
	return r.id
}

// Timestamp returns the record timestamp and whether one was set.
func (r DeviceRecord) Timestamp() (time.Time, bool) {
	if r.timestamp == nil {
		return time.Time{}, false
	}

	return *r.timestamp, true
}

func (r DeviceRecord) Properties() []Property {
	return slices.Clone(r.properties)
}

// Validate checks the record against the ingestion rules. now is the instant
// the timestamp must not exceed.
func (r DeviceRecord) Validate(now time.Time) error {
	if r.id == "" {
		return newValidationError("id", "must not be empty")
	}

	if r.timestamp != nil && r.timestamp.After(now) {
		return newValidationError("timestamp", "%s is in the future", r.timestamp.Format(time.RFC3339Nano))
	}

	if len(r.properties) == 0 {
		return newValidationError("properties", "must not be empty")
	}

	seen := make(map[string]struct{}, len(r.properties))

	for i, p := range r.properties {
		if p.Name == "" {
			return newValidationError(fmt.Sprintf("properties[%d]", i), "name must not be empty")
		}

		if p.Name == idKey || p.Name == timestampKey {
			return newValidationError(fmt.Sprintf("properties[%d]", i), "name %q is reserved", p.Name)
		}

		if _, ok := seen[p.Name]; ok {
			return newValidationError(fmt.Sprintf("properties[%d]", i), "duplicate name %q", p.Name)
		}

		seen[p.Name] = struct{}{}

		if reason := checkPropertyValue(p.Value); reason != "" {
			return newValidationError(fmt.Sprintf("properties[%d]", i), "%s: %s", p.Name, reason)
		}
	}

	return nil
}

// MarshalJSON writes the wire form: $id, optional $ts, then one key per
// property in record order.
func (r DeviceRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	if err := writeMember(&buf, idKey, r.id); err != nil {
		return nil, err
	}

	if r.timestamp != nil {
		buf.WriteByte(',')

		if err := writeMember(&buf, timestampKey, *r.timestamp); err != nil {
			return nil, err
		}
	}

	for _, p := range r.properties {
		buf.WriteByte(',')

		if err := writeMember(&buf, p.Name, p.Value); err != nil {
			return nil, fmt.Errorf("property %q: %w", p.Name, err)
		}
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}

	v, err := marshalPropertyValue(value)
	if err != nil {
		return err
	}

	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)

	return nil
}

func validateRecords(records []DeviceRecord, now time.Time) error {
	for i, record := range records {
		if err := record.Validate(now); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	return nil
}
