package entity

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
)

// A Selector maps an entity to its unique identifier. It must be a pure function
// of the entity.
type Selector[K comparable, E any] func(E) K

// Identifier is implemented by entities that know their own identifier. The
// default selector prefers this method over reflection.
type Identifier[K comparable] interface {
	EntityID() K
}

// DefaultSelector returns the Selector used whenever an operation is given a nil
// selector. It derives the identifier of an entity by looking, in order, for:
//
//   - an EntityID() K method (see Identifier),
//   - an exported struct field tagged `entity:"id"`,
//   - an exported struct field named ID or Id,
//   - the "id" key of a map with string keys.
//
// Pointers and interfaces are followed to their underlying values. The found
// value must be of type K, or a number convertible to a numeric K.
//
// The returned Selector panics if none of the above applies because a missing
// identity is a programming error of the entity type, not a runtime condition.
func DefaultSelector[K comparable, E any]() Selector[K, E] {
	return func(e E) K {
		if x, ok := any(e).(Identifier[K]); ok {
			return x.EntityID()
		}
		id, err := reflectiveID[K](reflect.ValueOf(e))
		if err != nil {
			panic("entity: default selector: " + err.Error())
		}
		return id
	}
}

// FieldSelector returns a Selector that reads the named exported struct field
// (or string map key) of an entity. It is useful for records whose identity lives
// in a field that is not called "id".
func FieldSelector[K comparable, E any](name string) Selector[K, E] {
	return func(e E) K {
		v, err := indirect(reflect.ValueOf(e))
		if err != nil {
			panic("entity: field selector: " + err.Error())
		}
		var field reflect.Value
		switch v.Kind() {
		case reflect.Struct:
			field = v.FieldByName(name)
		case reflect.Map:
			field = mapIndex(v, name)
		}
		if !field.IsValid() {
			panic(fmt.Sprintf("entity: field selector: %s has no field %q", v.Type(), name))
		}
		id, err := convertID[K](field)
		if err != nil {
			panic("entity: field selector: " + err.Error())
		}
		return id
	}
}

func orDefault[K comparable, E any](sel Selector[K, E]) Selector[K, E] {
	if sel == nil {
		return DefaultSelector[K, E]()
	}
	return sel
}

// idFields caches the index of the identifier field per struct type; types
// without such a field are cached with a nil index.
var idFields sync.Map // map[reflect.Type][]int

func idFieldIndex(t reflect.Type) ([]int, bool) {
	if idx, ok := idFields.Load(t); ok {
		return idx.([]int), idx.([]int) != nil
	}
	var found []int
	fields := reflect.VisibleFields(t)
	for _, f := range fields {
		if f.IsExported() && f.Tag.Get("entity") == "id" {
			found = f.Index
			break
		}
	}
	if found == nil {
		for _, f := range fields {
			if f.IsExported() && strings.EqualFold(f.Name, "id") {
				found = f.Index
				break
			}
		}
	}
	idFields.Store(t, found)
	return found, found != nil
}

func reflectiveID[K comparable](v reflect.Value) (K, error) {
	var zero K
	v, err := indirect(v)
	if err != nil {
		return zero, err
	}
	var field reflect.Value
	switch v.Kind() {
	case reflect.Struct:
		idx, ok := idFieldIndex(v.Type())
		if !ok {
			return zero, fmt.Errorf("%s has no identifier field", v.Type())
		}
		field, err = v.FieldByIndexErr(idx)
		if err != nil {
			return zero, fmt.Errorf("%s identifier: %w", v.Type(), err)
		}
	case reflect.Map:
		field = mapIndex(v, "id")
		if !field.IsValid() {
			return zero, fmt.Errorf("%s has no %q key", v.Type(), "id")
		}
	default:
		return zero, fmt.Errorf("cannot derive identifier of %s", v.Type())
	}
	return convertID[K](field)
}

func indirect(v reflect.Value) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, errors.New("nil entity")
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return v, errors.New("nil entity")
	}
	return v, nil
}

func mapIndex(m reflect.Value, key string) reflect.Value {
	if m.Type().Key().Kind() != reflect.String {
		return reflect.Value{}
	}
	return m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
}

func convertID[K comparable](field reflect.Value) (K, error) {
	var zero K
	for field.Kind() == reflect.Interface && !field.IsNil() {
		field = field.Elem()
	}
	if !field.IsValid() || !field.CanInterface() {
		return zero, errors.New("identifier is not accessible")
	}
	if id, ok := field.Interface().(K); ok {
		return id, nil
	}
	kt := reflect.TypeFor[K]()
	if isNumber(field.Kind()) && isNumber(kt.Kind()) {
		// Distinct identifiers must never convert to the same one.
		if isFloat(field.Kind()) && !isFloat(kt.Kind()) {
			if f := field.Float(); f != math.Trunc(f) || math.IsInf(f, 0) {
				return zero, fmt.Errorf("identifier %v is not a %s", f, kt)
			}
		}
		return field.Convert(kt).Interface().(K), nil
	}
	return zero, fmt.Errorf("identifier of type %s is not a %s", field.Type(), kt)
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
