package codec

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
)

// timeLayouts are the string formats client versions used for timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006, 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2006-01-02",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

// object reads fields of one legacy JSON object, trying aliases in order.
type object struct {
	kind Kind
	raw  []byte
}

// lookup returns the first alias present with a non-null value.
func (o object) lookup(names []string) (value []byte, typ jsonparser.ValueType, name string) {
	for _, name := range names {
		v, t, _, err := jsonparser.Get(o.raw, name)
		if err != nil || t == jsonparser.NotExist || t == jsonparser.Null {
			continue
		}
		return v, t, name
	}
	return nil, jsonparser.NotExist, ""
}

func (o object) has(names ...string) bool {
	_, t, _ := o.lookup(names)
	return t != jsonparser.NotExist
}

func (o object) text(names ...string) (string, error) {
	v, t, name := o.lookup(names)
	switch t {
	case jsonparser.NotExist:
		return "", nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil {
			return "", fieldError(o.kind, name, "invalid string", err)
		}
		return strings.TrimSpace(s), nil
	case jsonparser.Number:
		return string(v), nil
	default:
		return "", fieldError(o.kind, name, "expected a string, got "+t.String(), nil)
	}
}

func (o object) integer(names ...string) (int, error) {
	v, t, name := o.lookup(names)
	switch t {
	case jsonparser.NotExist:
		return 0, nil
	case jsonparser.Number:
		if n, err := jsonparser.ParseInt(v); err == nil {
			return int(n), nil
		}
		f, err := jsonparser.ParseFloat(v)
		if err != nil || f != math.Trunc(f) {
			return 0, fieldError(o.kind, name, "expected an integer", err)
		}
		return int(f), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil {
			return 0, fieldError(o.kind, name, "invalid string", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fieldError(o.kind, name, "expected an integer", err)
		}
		return n, nil
	default:
		return 0, fieldError(o.kind, name, "expected an integer, got "+t.String(), nil)
	}
}

func (o object) boolean(names ...string) (value bool, found bool, err error) {
	v, t, name := o.lookup(names)
	switch t {
	case jsonparser.NotExist:
		return false, false, nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(v)
		if err != nil {
			return false, false, fieldError(o.kind, name, "invalid boolean", err)
		}
		return b, true, nil
	default:
		return false, false, fieldError(o.kind, name, "expected a boolean, got "+t.String(), nil)
	}
}

func (o object) timestamp(names ...string) (time.Time, error) {
	v, t, name := o.lookup(names)
	switch t {
	case jsonparser.NotExist:
		return time.Time{}, nil
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(v)
		if err != nil {
			return time.Time{}, fieldError(o.kind, name, "invalid epoch", err)
		}
		if f >= epochMillisThreshold {
			return time.UnixMilli(int64(f)).UTC(), nil
		}
		return time.Unix(int64(f), 0).UTC(), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil {
			return time.Time{}, fieldError(o.kind, name, "invalid string", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fieldError(o.kind, name, "unrecognized timestamp "+strconv.Quote(s), nil)
	default:
		return time.Time{}, fieldError(o.kind, name, "expected a timestamp, got "+t.String(), nil)
	}
}

// list reads an array of strings or numbers. Missing yields an empty, non-nil slice.
func (o object) list(names ...string) ([]string, error) {
	v, t, name := o.lookup(names)
	out := []string{}
	switch t {
	case jsonparser.NotExist:
		return out, nil
	case jsonparser.Array:
	default:
		return nil, fieldError(o.kind, name, "expected an array, got "+t.String(), nil)
	}

	var elemErr error
	_, err := jsonparser.ArrayEach(v, func(elem []byte, et jsonparser.ValueType, _ int, _ error) {
		if elemErr != nil {
			return
		}
		switch et {
		case jsonparser.String:
			s, err := jsonparser.ParseString(elem)
			if err != nil {
				elemErr = err
				return
			}
			out = append(out, s)
		case jsonparser.Number:
			out = append(out, string(elem))
		case jsonparser.Null:
		default:
			elemErr = errors.New("unexpected " + et.String() + " element")
		}
	})
	if err == nil {
		err = elemErr
	}
	if err != nil {
		return nil, fieldError(o.kind, name, "invalid array", err)
	}
	return out, nil
}

// flags reads an object of booleans such as {"conferido": true}.
func (o object) flags(names ...string) (map[string]bool, error) {
	v, t, name := o.lookup(names)
	out := map[string]bool{}
	switch t {
	case jsonparser.NotExist:
		return out, nil
	case jsonparser.Object:
	default:
		return nil, fieldError(o.kind, name, "expected an object, got "+t.String(), nil)
	}

	err := jsonparser.ObjectEach(v, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
		if vt != jsonparser.Boolean {
			return errors.New("flag " + string(key) + " is " + vt.String())
		}
		b, err := jsonparser.ParseBoolean(value)
		if err != nil {
			return err
		}
		out[string(key)] = b
		return nil
	})
	if err != nil {
		return nil, fieldError(o.kind, name, "invalid flags", err)
	}
	return out, nil
}

// document decodes a free-form object. Missing yields an empty, non-nil map.
func (o object) document(names ...string) (map[string]any, error) {
	v, t, name := o.lookup(names)
	out := map[string]any{}
	switch t {
	case jsonparser.NotExist:
		return out, nil
	case jsonparser.Object:
	default:
		return nil, fieldError(o.kind, name, "expected an object, got "+t.String(), nil)
	}
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fieldError(o.kind, name, "invalid object", err)
	}
	return out, nil
}

// eachObject calls fn for every element of a JSON array, rejecting non-object elements.
func eachObject(kind Kind, array []byte, fn func(obj object) error) error {
	var cbErr error
	_, err := jsonparser.ArrayEach(array, func(elem []byte, t jsonparser.ValueType, _ int, _ error) {
		if cbErr != nil {
			return
		}
		if t != jsonparser.Object {
			cbErr = shapeError(kind, "array element is "+t.String()+", expected an object")
			return
		}
		cbErr = fn(object{kind: kind, raw: elem})
	})
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		return &DecodeError{Kind: MalformedJSON, Entity: kind, Err: err}
	}
	return nil
}
