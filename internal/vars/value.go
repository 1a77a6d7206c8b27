// Package vars holds typed script variables. Every stored value carries a type
// tag so readers can validate what they get back.
package vars

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag names the type of a stored value.
type Tag uint8

const (
	TagNone Tag = iota
	TagInt
	TagFloat
	TagBool
	TagString
	TagDirection
)

var tagNames = [...]string{
	TagNone:      "none",
	TagInt:       "int",
	TagFloat:     "float",
	TagBool:      "bool",
	TagString:    "string",
	TagDirection: "direction",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// ParseTag accepts the names used in mod manifests and spawn lists.
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return TagInt, nil
	case "float", "number", "double":
		return TagFloat, nil
	case "bool", "boolean":
		return TagBool, nil
	case "string", "text":
		return TagString, nil
	case "direction", "dir":
		return TagDirection, nil
	}
	return TagNone, fmt.Errorf("unknown value type %q", s)
}

func (t Tag) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tag) UnmarshalText(b []byte) error {
	v, err := ParseTag(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Value is a tagged variable value. V holds int64, float64, bool, string or
// Direction according to Tag.
type Value struct {
	Tag Tag
	V   any
}

func Int(v int64) Value                { return Value{Tag: TagInt, V: v} }
func Float(v float64) Value            { return Value{Tag: TagFloat, V: v} }
func Bool(v bool) Value                { return Value{Tag: TagBool, V: v} }
func String(v string) Value            { return Value{Tag: TagString, V: v} }
func DirectionValue(d Direction) Value { return Value{Tag: TagDirection, V: d} }

// Of wraps a Go value, inferring its tag. Integers of any width become TagInt.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case Direction:
		return DirectionValue(x), nil
	}
	return Value{}, fmt.Errorf("unsupported variable type %T", v)
}

// Convert coerces raw (as decoded from YAML, TOML or a script) to tag.
func Convert(tag Tag, raw any) (Value, error) {
	switch tag {
	case TagInt:
		switch x := raw.(type) {
		case int:
			return Int(int64(x)), nil
		case int32:
			return Int(int64(x)), nil
		case int64:
			return Int(x), nil
		case float64:
			if x != float64(int64(x)) {
				return Value{}, fmt.Errorf("%v is not an integer", x)
			}
			return Int(int64(x)), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("parse int %q: %w", x, err)
			}
			return Int(n), nil
		}
	case TagFloat:
		switch x := raw.(type) {
		case int:
			return Float(float64(x)), nil
		case int32:
			return Float(float64(x)), nil
		case int64:
			return Float(float64(x)), nil
		case float32:
			return Float(float64(x)), nil
		case float64:
			return Float(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return Value{}, fmt.Errorf("parse float %q: %w", x, err)
			}
			return Float(f), nil
		}
	case TagBool:
		switch x := raw.(type) {
		case bool:
			return Bool(x), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return Value{}, fmt.Errorf("parse bool %q: %w", x, err)
			}
			return Bool(b), nil
		}
	case TagString:
		if s, ok := raw.(string); ok {
			return String(s), nil
		}
	case TagDirection:
		switch x := raw.(type) {
		case Direction:
			return DirectionValue(x), nil
		case string:
			d, err := ParseDirection(x)
			if err != nil {
				return Value{}, err
			}
			return DirectionValue(d), nil
		case int:
			if x >= 0 && x <= int(DirectionRight) {
				return DirectionValue(Direction(x)), nil
			}
		}
	}
	return Value{}, fmt.Errorf("cannot use %v (%T) as %s", raw, raw, tag)
}

// Number returns the value as float64 for numeric tags.
func (v Value) Number() (float64, bool) {
	switch x := v.V.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%v)", v.Tag, v.V)
}
