package criteriaquery

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// FieldResolver supplies the metadata of a document attribute by name.
type FieldResolver interface {
	Resolve(name string) Field
}

// Fields maps dotted attribute names to their metadata.
type Fields map[string]Field

// Resolve returns the metadata registered for name. Unknown names resolve to
// a plain text field; nothing is validated against a schema.
func (fs Fields) Resolve(name string) Field {
	if f, ok := fs[name]; ok {
		return f
	}
	return NewField(name)
}

// FieldsOf reads field metadata from the struct tags of model. Names come
// from the json tag and fields without one are skipped. The search tag takes
// the options "keyword" (exact match field) and "nested" (the struct or slice
// of structs is indexed as nested objects, so its attributes get its name as
// path):
//
//	type Book struct {
//		Title   string   `json:"title"`
//		ISBN    string   `json:"isbn" search:"keyword"`
//		Authors []Author `json:"authors" search:"nested"`
//	}
func FieldsOf(model any) (Fields, error) {
	typ := reflect.TypeOf(model)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct or pointer to struct, got %T", model)
	}

	fields := make(Fields)
	collectFields(typ, "", "", fields, map[reflect.Type]bool{})
	return fields, nil
}

func collectFields(typ reflect.Type, prefix, path string, out Fields, visiting map[reflect.Type]bool) {
	if visiting[typ] {
		return
	}
	visiting[typ] = true
	defer delete(visiting, typ)

	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.Anonymous && sf.Tag.Get("json") == "" {
			// Untagged embedded structs have their fields promoted.
			embedded := sf.Type
			if embedded.Kind() == reflect.Ptr {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				collectFields(embedded, prefix, path, out, visiting)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		name := jsonName(sf)
		if name == "" {
			continue
		}

		full := prefix + name
		opts := strings.Split(sf.Tag.Get("search"), ",")
		field := Field{Name: full, Path: path}
		if slices.Contains(opts, "keyword") {
			field.Type = FieldTypeKeyword
		}
		out[full] = field

		elem := sf.Type
		for elem.Kind() == reflect.Ptr || elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			continue
		}
		childPath := path
		if slices.Contains(opts, "nested") {
			childPath = full
		}
		collectFields(elem, full+".", childPath, out, visiting)
	}
}

// jsonName returns the name of the json tag, or "" when the field is not
// serialized.
func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return ""
	}
	// Handle json tag with options (e.g., "name,omitempty")
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return sf.Name
	}
	return name
}
