package relay

import "reflect"

// anyType is the universal top type every registry relays into.
var anyType = reflect.TypeFor[any]()

// ancestor is one type whose subscribers must also see payloads of the type
// being initialized, with the conversion from the descendant's value.
type ancestor struct {
	typ  reflect.Type
	conv Converter
}

// embeddedBases returns the transitive embedded struct bases of t. Only
// exported embedded fields qualify. For a pointer payload the ancestor of an
// embedded value field is a pointer to that field.
func embeddedBases(t reflect.Type) []ancestor {
	var out []ancestor
	seen := map[reflect.Type]bool{t: true}

	var walk func(cur reflect.Type, conv Converter)
	walk = func(cur reflect.Type, conv Converter) {
		st, ptr := structOf(cur)
		if st == nil {
			return
		}
		for i := 0; i < st.NumField(); i++ {
			f := st.Field(i)
			if !f.Anonymous || !f.IsExported() {
				continue
			}
			base, step := baseStep(f.Type, i, ptr)
			if base == nil || seen[base] {
				continue
			}
			seen[base] = true
			c := compose(conv, step)
			out = append(out, ancestor{typ: base, conv: c})
			walk(base, c)
		}
	}
	walk(t, nil)
	return out
}

func structOf(t reflect.Type) (reflect.Type, bool) {
	switch {
	case t.Kind() == reflect.Struct:
		return t, false
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return t.Elem(), true
	default:
		return nil, false
	}
}

// baseStep returns the ancestor type for embedded field i of type ft and the
// converter extracting it. ptr reports whether the holder is a pointer.
func baseStep(ft reflect.Type, i int, ptr bool) (reflect.Type, Converter) {
	switch {
	case ft.Kind() == reflect.Struct && ptr:
		return reflect.PointerTo(ft), func(v any) (any, bool) {
			rv := reflect.ValueOf(v)
			if !rv.IsValid() || rv.IsNil() {
				return nil, false
			}
			return rv.Elem().Field(i).Addr().Interface(), true
		}
	case ft.Kind() == reflect.Struct:
		return ft, func(v any) (any, bool) {
			rv := reflect.ValueOf(v)
			if !rv.IsValid() {
				return nil, false
			}
			return rv.Field(i).Interface(), true
		}
	case ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct:
		return ft, func(v any) (any, bool) {
			rv := reflect.ValueOf(v)
			if !rv.IsValid() {
				return nil, false
			}
			if ptr {
				if rv.IsNil() {
					return nil, false
				}
				rv = rv.Elem()
			}
			fv := rv.Field(i)
			if fv.IsNil() {
				return nil, false
			}
			return fv.Interface(), true
		}
	default:
		return nil, nil
	}
}
