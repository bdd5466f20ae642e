package tiercache

import "testing"

func TestIsNilValue(t *testing.T) {
	var nilPtr *int
	var nilMap map[string]int
	var nilSlice []int
	var nilChan chan int
	var nilFunc func()
	var nilIface any

	cases := []struct {
		name string
		v    any
		want bool
	}{
		{"untyped nil", nil, true},
		{"nil pointer", nilPtr, true},
		{"nil map", nilMap, true},
		{"nil slice", nilSlice, true},
		{"nil chan", nilChan, true},
		{"nil func", nilFunc, true},
		{"nil interface value", nilIface, true},
		{"zero int", 0, false},
		{"empty string", "", false},
		{"non-nil pointer", &struct{}{}, false},
		{"non-nil map", map[string]int{}, false},
		{"non-nil slice", []int{}, false},
		{"struct value", struct{ X int }{X: 1}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isNilValue(c.v); got != c.want {
				t.Fatalf("isNilValue(%#v) = %v, want %v", c.v, got, c.want)
			}
		})
	}
}
