// Package config loads machine.toml: the switch roster and accelerometer
// tuning. Unmarshal/Decode only need to cross structs, slices, and
// scalars — MachineConfig has no map-typed or pointer-typed fields — so
// the reflection walk below is scoped to that shape rather than a
// general-purpose decoder for arbitrary Go values.
package config

import (
	"fmt"
	"reflect"
	"strings"
)

// Unmarshal parses a machine.toml document and stores the result in the
// value pointed to by v (in practice, always a *MachineConfig).
func Unmarshal(data []byte, v any) error {
	p := NewParser(data)
	parsedMap, err := p.Parse()
	if err != nil {
		return err
	}
	return Decode(parsedMap, v)
}

// Decode maps a generic map[string]any (the parser's output) onto the
// struct pointed to by v. It prioritizes `toml` tags and falls back to
// field names.
func Decode(data any, v any) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}

	return decodeValue(data, val.Elem())
}

func decodeValue(data any, val reflect.Value) error {
	if data == nil {
		return nil
	}

	switch val.Kind() {
	case reflect.Struct:
		dataMap, ok := data.(map[string]any)
		if !ok {
			return fmt.Errorf("expected map for struct, got %T", data)
		}
		return decodeStruct(dataMap, val)

	case reflect.Slice:
		// Covers both plain arrays ([]any from the parser) and arrays of
		// tables ([[switches]], [[accelerometer.level_limits]]), which
		// the parser builds as []map[string]any.
		dataSlice, ok := data.([]any)
		if !ok {
			if mapSlice, ok := data.([]map[string]any); ok {
				dataSlice = make([]any, len(mapSlice))
				for i, m := range mapSlice {
					dataSlice[i] = m
				}
			} else {
				return fmt.Errorf("expected slice, got %T", data)
			}
		}

		newSlice := reflect.MakeSlice(val.Type(), len(dataSlice), len(dataSlice))
		for i := 0; i < len(dataSlice); i++ {
			if err := decodeValue(dataSlice[i], newSlice.Index(i)); err != nil {
				return err
			}
		}
		val.Set(newSlice)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// Convert generic int or float to specific int
		f, ok := toFloat(data)
		if ok {
			val.SetInt(int64(f))
		} else {
			return fmt.Errorf("cannot convert %T to int", data)
		}

	case reflect.Float32, reflect.Float64:
		f, ok := toFloat(data)
		if ok {
			val.SetFloat(f)
		} else {
			return fmt.Errorf("cannot convert %T to float", data)
		}

	case reflect.String:
		if s, ok := data.(string); ok {
			val.SetString(s)
		} else {
			return fmt.Errorf("cannot convert %T to string", data)
		}

	case reflect.Bool:
		if b, ok := data.(bool); ok {
			val.SetBool(b)
		} else {
			return fmt.Errorf("cannot convert %T to bool", data)
		}
	}

	return nil
}

func decodeStruct(data map[string]any, val reflect.Value) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Determine key name
		key := fieldType.Name
		if tag := fieldType.Tag.Get("toml"); tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			key = parts[0]
		}

		// Look up in data map (case sensitive)
		if vData, ok := data[key]; ok {
			if err := decodeValue(vData, field); err != nil {
				return fmt.Errorf("%s.%s: %w", typ.Name(), fieldType.Name, err)
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch i := v.(type) {
	case int:
		return float64(i), true
	case int8:
		return float64(i), true
	case int16:
		return float64(i), true
	case int32:
		return float64(i), true
	case int64:
		return float64(i), true
	case uint:
		return float64(i), true
	case uint8:
		return float64(i), true
	case uint16:
		return float64(i), true
	case uint32:
		return float64(i), true
	case uint64:
		return float64(i), true
	case float64:
		return i, true
	}
	return 0, false
}