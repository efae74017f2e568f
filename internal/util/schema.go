package util

import (
	"reflect"
	"slices"
	"strings"
)

// CreateSchema describes a payload struct as a JSON schema fragment so it can
// be embedded in extraction prompts. Fields without omitempty are required;
// a json:"-" tag hides a field and a description tag is copied verbatim.
func CreateSchema(v any) map[string]any {
	return schemaOf(reflect.TypeOf(v))
}

func schemaOf(t reflect.Type) map[string]any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": schemaOf(t.Elem())}
	default:
		return map[string]any{"type": jsonType(t)}
	}

	props := make(map[string]any, t.NumField())
	var required []string

	for i := range t.NumField() {
		f := t.Field(i)
		name, opts, skip := jsonName(f)
		if skip {
			continue
		}

		prop := schemaOf(f.Type)
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		props[name] = prop

		if f.Type.Kind() != reflect.Pointer && !slices.Contains(opts, "omitempty") {
			required = append(required, name)
		}
	}

	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func jsonName(f reflect.StructField) (string, []string, bool) {
	if !f.IsExported() {
		return "", nil, true
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", nil, true
	}
	name, rest, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	var opts []string
	if rest != "" {
		opts = strings.Split(rest, ",")
	}
	return name, opts, false
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Map:
		return "object"
	default:
		return "string"
	}
}
