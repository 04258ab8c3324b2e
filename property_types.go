package client

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// checkPropertyValue returns a reason when v may not be sent as a property
// value. Only the exact types listed below are accepted; named types derived
// from them (type Celsius float64) must be converted by the caller. NaN and
// infinite floats have no JSON form.
func checkPropertyValue(v any) string {
	switch value := v.(type) {
	case float32:
		return checkFinite(float64(value))
	case float64:
		return checkFinite(value)
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		decimal.Decimal, time.Time, []byte, uuid.UUID,
		reflect.Type:
		return ""
	default:
		return fmt.Sprintf("type %T is not supported", v)
	}
}

func checkFinite(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("value %v is not a finite number", f)
	}

	return ""
}

// marshalPropertyValue encodes an allowed value as its JSON-native form.
func marshalPropertyValue(v any) ([]byte, error) {
	switch value := v.(type) {
	case decimal.Decimal:
		// decimal marshals to a quoted string by default.
		return []byte(value.String()), nil
	case reflect.Type:
		return json.Marshal(value.String())
	case time.Time:
		return json.Marshal(value.Format(time.RFC3339Nano))
	default:
		return json.Marshal(value)
	}
}
