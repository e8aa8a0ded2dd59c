// Package payload provides the deserialized payload shapes stages operate on.
package payload

import (
	"encoding/json"
	"fmt"
	"strconv"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
)

// JSON is a decoded JSON object addressed by dotted paths.
type JSON struct {
	root map[string]any
}

func NewJSON(root map[string]any) *JSON {
	if root == nil {
		root = map[string]any{}
	}
	return &JSON{root: root}
}

func (j *JSON) Payload() any             { return j.root }
func (j *JSON) Root() map[string]any     { return j.root }
func (j *JSON) Replace(r map[string]any) { j.root = r }

func (j *JSON) GetField(path string) (any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, sferrors.NewOperationError("get", "%v", err)
	}
	var cur any = j.root
	for _, s := range segs {
		next, ok := child(cur, s)
		if !ok {
			return nil, &sferrors.FieldNotFoundError{Field: path}
		}
		cur = next
	}
	if cur == nil {
		return nil, &sferrors.FieldNotFoundError{Field: path}
	}
	return cur, nil
}

// GetFieldAsString renders a primitive field as a string. Objects, arrays and
// nulls are reported as not found.
func (j *JSON) GetFieldAsString(path string) (string, error) {
	v, err := j.GetField(path)
	if err != nil {
		return "", err
	}
	s, ok := AsString(v)
	if !ok {
		return "", &sferrors.FieldNotFoundError{Field: path}
	}
	return s, nil
}

// SetField writes value at path, creating intermediate objects.
func (j *JSON) SetField(path string, value any) error {
	segs, err := parsePath(path)
	if err != nil {
		return sferrors.NewOperationError("set", "%v", err)
	}
	var cur any = j.root
	for i, s := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]any:
			if s.index >= 0 {
				return sferrors.NewOperationError("set", "%s: cannot index an object", path)
			}
			if last {
				node[s.key] = value
				return nil
			}
			next, ok := node[s.key]
			if !ok || next == nil {
				if segs[i+1].index >= 0 {
					return sferrors.NewOperationError("set", "%s: array %q does not exist", path, s.key)
				}
				next = map[string]any{}
				node[s.key] = next
			}
			cur = next
		case []any:
			if s.index < 0 || s.index >= len(node) {
				return sferrors.NewOperationError("set", "%s: index out of range", path)
			}
			if last {
				node[s.index] = value
				return nil
			}
			cur = node[s.index]
		default:
			return sferrors.NewOperationError("set", "%s: parent is not an object", path)
		}
	}
	return nil
}

// DeleteField removes the field at path.
func (j *JSON) DeleteField(path string) error {
	segs, err := parsePath(path)
	if err != nil {
		return sferrors.NewOperationError("delete", "%v", err)
	}
	var cur any = j.root
	for _, s := range segs[:len(segs)-1] {
		next, ok := child(cur, s)
		if !ok {
			return &sferrors.FieldNotFoundError{Field: path}
		}
		cur = next
	}
	last := segs[len(segs)-1]
	switch node := cur.(type) {
	case map[string]any:
		if _, ok := node[last.key]; !ok || last.index >= 0 {
			return &sferrors.FieldNotFoundError{Field: path}
		}
		delete(node, last.key)
		return nil
	default:
		return sferrors.NewOperationError("delete", "%s: only object keys can be deleted", path)
	}
}

func child(cur any, s segment) (any, bool) {
	switch node := cur.(type) {
	case map[string]any:
		if s.index >= 0 {
			return nil, false
		}
		v, ok := node[s.key]
		return v, ok
	case []any:
		if s.index < 0 || s.index >= len(node) {
			return nil, false
		}
		return node[s.index], true
	default:
		return nil, false
	}
}

// AsString renders a JSON primitive. ok is false for objects, arrays and nil.
func AsString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

// AsInt64 converts a numeric or numeric-string field to an int64.
func AsInt64(v any) (int64, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		return int64(f), err
	case float64:
		return int64(val), nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		return int64(f), err
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
