package executor

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// goToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, []string, []any,
// map[string]any, nil.
func goToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := goToStarlark(v)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// mapToDict converts a string map into a Starlark dict, tolerating any
// nested value the worker produced.
func mapToDict(m map[string]any) (*starlark.Dict, error) {
	dict := starlark.NewDict(len(m))
	for k, v := range m {
		sv, err := goToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), sv); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
	}
	return dict, nil
}

// stringMapToStruct converts a string map into a Starlark struct so modules
// can use attribute access (props.properties.<name>).
func stringMapToStruct(name string, m map[string]string) starlark.Value {
	dict := make(starlark.StringDict, len(m))
	for k, v := range m {
		dict[k] = starlark.String(v)
	}
	return starlarkstruct.FromStringDict(starlark.String(name), dict)
}
