// Package event holds helpers for building event payloads out of model
// structs.
package event

import (
	"reflect"
	"strings"
)

// FieldExtractor reads JSON-named fields out of a struct.
type FieldExtractor interface {
	ExtractFields(obj interface{}, fields []string) map[string]interface{}
	ExtractChanges(old, new interface{}, fields []string) map[string]interface{}
}

type DefaultFieldExtractor struct{}

// ExtractFields returns the listed fields of obj keyed by JSON name.
// Pointer fields are dereferenced; nil pointers come back as nil.
func (e *DefaultFieldExtractor) ExtractFields(obj interface{}, fields []string) map[string]interface{} {
	result := make(map[string]interface{})
	if obj == nil || len(fields) == 0 {
		return result
	}

	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return result
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return result
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "" {
			jsonTag = strings.ToLower(field.Name)
		}
		jsonTag = strings.Split(jsonTag, ",")[0]

		if contains(fields, jsonTag) {
			result[jsonTag] = indirect(val.Field(i))
		}
	}
	return result
}

// ExtractChanges returns {"old": ..., "new": ...} for every listed field
// whose value differs between old and new.
func (e *DefaultFieldExtractor) ExtractChanges(old, new interface{}, fields []string) map[string]interface{} {
	changes := make(map[string]interface{})
	if old == nil || new == nil || len(fields) == 0 {
		return changes
	}

	oldFields := e.ExtractFields(old, fields)
	newFields := e.ExtractFields(new, fields)

	for field, newValue := range newFields {
		if oldValue, exists := oldFields[field]; exists {
			if !reflect.DeepEqual(oldValue, newValue) {
				changes[field] = map[string]interface{}{
					"old": oldValue,
					"new": newValue,
				}
			}
		}
	}
	return changes
}

func indirect(v reflect.Value) interface{} {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Interface()
	}
	return v.Interface()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
