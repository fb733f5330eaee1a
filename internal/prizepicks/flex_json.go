package prizepicks

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// fieldMaps caches JSON tag -> struct field index mappings per type
var fieldMaps sync.Map

func fieldMapFor(t reflect.Type) map[string]int {
	if m, ok := fieldMaps.Load(t); ok {
		return m.(map[string]int)
	}
	m := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		m[strings.Split(tag, ",")[0]] = i
	}
	fieldMaps.Store(t, m)
	return m
}

// flexUnmarshal decodes a JSON object into the struct pointed to by dst,
// accepting quoted numbers and booleans where the field wants native types.
// dst must be a pointer to a type without its own UnmarshalJSON method.
func flexUnmarshal(data []byte, dst any) error {
	// Fast path: everything already has the right JSON type
	if err := json.Unmarshal(data, dst); err == nil {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("flex unmarshal: %w", err)
	}

	v := reflect.ValueOf(dst).Elem()
	fieldMap := fieldMapFor(v.Type())

	for key, rawVal := range raw {
		idx, ok := fieldMap[key]
		if !ok {
			continue
		}
		fv := v.Field(idx)
		if !fv.CanSet() {
			continue
		}

		ptr := reflect.New(fv.Type())
		if err := json.Unmarshal(rawVal, ptr.Interface()); err == nil {
			fv.Set(ptr.Elem())
			continue
		}

		// JSON string into a numeric/bool field
		if len(rawVal) > 1 && rawVal[0] == '"' {
			var s string
			if err := json.Unmarshal(rawVal, &s); err != nil || s == "" {
				continue
			}
			coerceStringToField(fv, s)
			continue
		}

		// JSON number into a string field
		if fv.Kind() == reflect.String {
			fv.SetString(string(rawVal))
		}
	}

	return nil
}

func coerceStringToField(fv reflect.Value, s string) {
	switch fv.Kind() {
	case reflect.Float32, reflect.Float64:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			fv.SetFloat(n)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			fv.SetInt(int64(n))
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(s); err == nil {
			fv.SetBool(b)
		}
	case reflect.String:
		fv.SetString(s)
	}
}
