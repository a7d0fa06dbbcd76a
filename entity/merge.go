package entity

import (
	"reflect"

	"dario.cat/mergo"
)

// Merge returns dst with the fields set in changes applied on top of it. Neither
// argument is modified.
//
// The meaning of "set" depends on the kind of E:
//
//   - structs: every non-zero field of changes replaces the field of dst (zero
//     fields cannot express "clear this field"; use a transform for that),
//   - pointers to structs: like structs, applied to a copy of the pointee,
//   - maps: every key of changes replaces the key of a shallow copy of dst,
//   - anything else: changes replaces dst.
//
// Fields of map, slice and pointer types are replaced as a whole, never merged
// into, so entities held by older collections never observe the merge.
func Merge[E any](dst, changes E) E {
	v := reflect.ValueOf(&dst).Elem()
	switch v.Kind() {
	case reflect.Struct:
		if err := mergeStruct(&dst, changes); err != nil {
			panic("entity: merge: " + err.Error())
		}
		return dst
	case reflect.Pointer:
		c := reflect.ValueOf(changes)
		if v.IsNil() || c.IsNil() || v.Elem().Kind() != reflect.Struct {
			if c.IsNil() {
				return dst
			}
			return changes
		}
		cp := reflect.New(v.Elem().Type())
		cp.Elem().Set(v.Elem())
		if err := mergo.Merge(cp.Interface(), c.Elem().Interface(), mergeOptions...); err != nil {
			panic("entity: merge: " + err.Error())
		}
		return cp.Interface().(E)
	case reflect.Map:
		return mergeMap(dst, changes)
	default:
		return changes
	}
}

var mergeOptions = []func(*mergo.Config){
	mergo.WithOverride,
	mergo.WithoutDereference,
	mergo.WithTransformers(replaceFields{}),
}

func mergeStruct[E any](dst *E, changes E) error {
	return mergo.Merge(dst, changes, mergeOptions...)
}

// replaceFields instructs mergo to replace set map, slice and pointer fields
// instead of merging into the destination values, which are shared with older
// entities. Nil destinations never reach a transformer; mergo's override sets
// them.
type replaceFields struct{}

func (replaceFields) Transformer(t reflect.Type) func(dst, src reflect.Value) error {
	switch t.Kind() {
	case reflect.Map, reflect.Slice:
		return func(dst, src reflect.Value) error {
			if src.Len() > 0 && dst.CanSet() {
				dst.Set(src)
			}
			return nil
		}
	case reflect.Pointer:
		return func(dst, src reflect.Value) error {
			if !src.IsNil() && dst.CanSet() {
				dst.Set(src)
			}
			return nil
		}
	default:
		return nil
	}
}

func mergeMap[E any](dst, changes E) E {
	d, c := reflect.ValueOf(dst), reflect.ValueOf(changes)
	if c.Len() == 0 {
		return dst
	}
	out := reflect.MakeMapWithSize(d.Type(), d.Len()+c.Len())
	for it := d.MapRange(); it.Next(); {
		out.SetMapIndex(it.Key(), it.Value())
	}
	for it := c.MapRange(); it.Next(); {
		out.SetMapIndex(it.Key(), it.Value())
	}
	return out.Interface().(E)
}
