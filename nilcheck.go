package tiercache

import "reflect"

// isNilValue reports whether v is a nil pointer, interface, map, slice,
// chan, or func. Used to reject null keys/values without
// constraining K/V to pointer-like types only.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
