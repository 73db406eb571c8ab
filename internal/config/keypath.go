package config

import (
	"fmt"
	"strconv"
	"strings"
)

// secretKeys can never be read or written through a KeyPath. Secrets belong
// in the environment or in a hand-edited file.
var secretKeys = map[string]bool{
	"apiKey":   true,
	"token":    true,
	"password": true,
}

// KeyPath addresses a value in the raw YAML tree. Segments are map keys or
// list indices: "hooks.robotAction.0.command".
type KeyPath []string

func (p KeyPath) String() string { return strings.Join(p, ".") }

// ParseConfigPath splits a dotted path, rejecting empty segments and secret keys.
func ParseConfigPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if secretKeys[p] {
			return nil, &ConfigError{Message: "config path contains secret key: " + p}
		}
	}
	return KeyPath(parts), nil
}

// GetValueAtPath returns the value at path, descending through maps and lists.
func GetValueAtPath(root map[string]any, path KeyPath) (any, bool) {
	var node any = root
	for _, key := range path {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[key]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			i, ok := listIndex(key, len(n))
			if !ok {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// SetValueAtPath stores value at path. Missing maps are created and a scalar
// in the way is replaced. On a list the index must address an element or be
// one past the end, which appends.
func SetValueAtPath(root map[string]any, path KeyPath, value any) error {
	if len(path) == 0 {
		return &ConfigError{Message: "empty config path"}
	}
	_, err := setIn(root, path, value)
	return err
}

func setIn(node any, path KeyPath, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	key, rest := path[0], path[1:]

	switch n := node.(type) {
	case map[string]any:
		v, err := setIn(n[key], rest, value)
		if err != nil {
			return nil, err
		}
		n[key] = v
		return n, nil
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i > len(n) {
			return nil, &ConfigError{Message: fmt.Sprintf("index %q out of range for list of %d", key, len(n))}
		}
		if i == len(n) {
			v, err := setIn(nil, rest, value)
			if err != nil {
				return nil, err
			}
			return append(n, v), nil
		}
		v, err := setIn(n[i], rest, value)
		if err != nil {
			return nil, err
		}
		n[i] = v
		return n, nil
	default:
		v, err := setIn(nil, rest, value)
		if err != nil {
			return nil, err
		}
		if key == "0" {
			return []any{v}, nil
		}
		return map[string]any{key: v}, nil
	}
}

// UnsetValueAtPath removes the value at path and reports whether it existed.
// Removing a list element shifts the ones after it.
func UnsetValueAtPath(root map[string]any, path KeyPath) bool {
	if len(path) == 0 {
		return false
	}
	_, ok := unsetIn(root, path)
	return ok
}

func unsetIn(node any, path KeyPath) (any, bool) {
	key, rest := path[0], path[1:]

	switch n := node.(type) {
	case map[string]any:
		child, exists := n[key]
		if !exists {
			return n, false
		}
		if len(rest) == 0 {
			delete(n, key)
			return n, true
		}
		v, ok := unsetIn(child, rest)
		if ok {
			n[key] = v
		}
		return n, ok
	case []any:
		i, exists := listIndex(key, len(n))
		if !exists {
			return n, false
		}
		if len(rest) == 0 {
			return append(n[:i], n[i+1:]...), true
		}
		v, ok := unsetIn(n[i], rest)
		if ok {
			n[i] = v
		}
		return n, ok
	default:
		return node, false
	}
}

func listIndex(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
