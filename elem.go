// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"reflect"
	"unsafe"
)

// Releaser is implemented by element types that own resources outside the
// vector, such as runtime handles. A vector calls Release exactly once on
// every element it discards: on Destroy, Clear, Truncate, and on Close of
// a partially consumed Drain or IntoIter. Elements handed to the caller by
// Pop, Remove or an iterator are the caller's to release.
//
// Release may have a value or a pointer receiver.
type Releaser interface {
	Release()
}

// elemInfo describes an element type once per buffer.
type elemInfo[T any] struct {
	size    uintptr
	align   uintptr
	release func(*T)
}

func newElemInfo[T any]() elemInfo[T] {
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		fatal(ErrZeroSizedType, "%T", zero)
	}
	typ := reflect.TypeFor[T]()
	if hasPointers(typ) {
		fatal(ErrPointerElement, "%s", typ)
	}
	return elemInfo[T]{
		size:    size,
		align:   unsafe.Alignof(zero),
		release: releaseFunc[T](),
	}
}

// releaseFunc returns the release hook for T, or nil if T has none.
func releaseFunc[T any]() func(*T) {
	var zero T
	if _, ok := any(zero).(Releaser); ok {
		return func(p *T) { any(*p).(Releaser).Release() }
	}
	if _, ok := any(&zero).(Releaser); ok {
		return func(p *T) { any(p).(Releaser).Release() }
	}
	return nil
}

// hasPointers reports whether values of t contain Go pointers.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
