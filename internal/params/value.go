package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"task-tracker-api/internal/models"
)

// ErrInvalidValue is returned when a value does not decode as its declared type.
var ErrInvalidValue = errors.New("invalid parameter value")

// Value is a parameter decoded once at load time.
type Value struct {
	Type models.ValueType
	Raw  string

	i int64
	f float64
	b bool
	j any
}

// Parse decodes raw according to t. Booleans accept true/false/1/0/yes/no.
func Parse(t models.ValueType, raw string) (Value, error) {
	v := Value{Type: t, Raw: raw}
	s := strings.TrimSpace(raw)
	switch t {
	case models.ValueInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an int", ErrInvalidValue, raw)
		}
		v.i, v.f = n, float64(n)
	case models.ValueFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a float", ErrInvalidValue, raw)
		}
		v.f, v.i = f, int64(f)
	case models.ValueBool:
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			v.b = true
		case "false", "0", "no":
		default:
			return Value{}, fmt.Errorf("%w: %q is not a bool", ErrInvalidValue, raw)
		}
	case models.ValueJSON:
		if err := json.Unmarshal([]byte(s), &v.j); err != nil {
			return Value{}, fmt.Errorf("%w: %q is not valid json", ErrInvalidValue, raw)
		}
	case models.ValueStr:
	default:
		return Value{}, fmt.Errorf("%w: unknown type %q", ErrInvalidValue, t)
	}
	return v, nil
}

func MustParse(t models.ValueType, raw string) Value {
	v, err := Parse(t, raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) Int() (int64, bool) {
	switch v.Type {
	case models.ValueInt, models.ValueFloat:
		return v.i, true
	}
	return 0, false
}

func (v Value) Float() (float64, bool) {
	switch v.Type {
	case models.ValueInt, models.ValueFloat:
		return v.f, true
	}
	return 0, false
}

func (v Value) Bool() (bool, bool) {
	if v.Type != models.ValueBool {
		return false, false
	}
	return v.b, true
}

func (v Value) String() string { return v.Raw }

// Strings returns a JSON array of strings.
func (v Value) Strings() ([]string, bool) {
	arr, ok := v.j.([]any)
	if v.Type != models.ValueJSON || !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// JSON returns the decoded json value.
func (v Value) JSON() (any, bool) {
	if v.Type != models.ValueJSON {
		return nil, false
	}
	return v.j, true
}
