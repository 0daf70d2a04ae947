package gcheap

import (
	"reflect"
	"unsafe"

	"github.com/modern-go/reflect2"
)

// TypePointers reports whether values of t can embed pointers. Pointer-free
// types skip scanning entirely and are eligible for arena storage.
func TypePointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Slice, reflect.String,
		reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		return true
	case reflect.Array:
		return t.Len() > 0 && TypePointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if TypePointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

type sliceHeader struct {
	data unsafe.Pointer
	len  int
	cap  int
}

type ifaceWords struct {
	tab  unsafe.Pointer
	data unsafe.Pointer
}

// scanner walks raw object memory looking for words that match object-table
// addresses. Pointers that lead outside the table are followed through
// ordinary Go values (guarded by seen), since those can hold managed
// references in their own fields. Interior pointers are not recognized.
type scanner struct {
	hp   *heap
	seen map[uintptr]struct{}
	work []*object
}

func (s *scanner) markObject(o *object) {
	if o.mark {
		return
	}
	o.mark = true
	if o.scan {
		s.work = append(s.work, o)
	}
}

func (s *scanner) drain() {
	for len(s.work) > 0 {
		o := s.work[len(s.work)-1]
		s.work = s.work[:len(s.work)-1]
		s.value(o.addr, o.typ)
	}
}

// pointer handles one pointer word. elem is the pointee type when known.
func (s *scanner) pointer(p unsafe.Pointer, elem reflect.Type) {
	if p == nil {
		return
	}
	a := uintptr(p)
	if o := s.hp.objects[a]; o != nil {
		s.markObject(o)
		return
	}
	if elem == nil || !TypePointers(elem) {
		return
	}
	if _, ok := s.seen[a]; ok {
		return
	}
	s.seen[a] = struct{}{}
	s.value(p, elem)
}

// value scans the memory of a value of type t located at p.
func (s *scanner) value(p unsafe.Pointer, t reflect.Type) {
	switch t.Kind() {
	case reflect.Ptr:
		s.pointer(*(*unsafe.Pointer)(p), t.Elem())
	case reflect.UnsafePointer:
		s.pointer(*(*unsafe.Pointer)(p), nil)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if TypePointers(f.Type) {
				s.value(unsafe.Add(p, f.Offset), f.Type)
			}
		}
	case reflect.Array:
		et := t.Elem()
		if !TypePointers(et) {
			return
		}
		sz := et.Size()
		for i := 0; i < t.Len(); i++ {
			s.value(unsafe.Add(p, uintptr(i)*sz), et)
		}
	case reflect.Slice:
		sh := (*sliceHeader)(p)
		if sh.data == nil {
			return
		}
		// the backing array may itself be collector-managed
		if o := s.hp.objects[uintptr(sh.data)]; o != nil {
			s.markObject(o)
		}
		et := t.Elem()
		if !TypePointers(et) {
			return
		}
		sz := et.Size()
		for i := 0; i < sh.len; i++ {
			s.value(unsafe.Add(sh.data, uintptr(i)*sz), et)
		}
	case reflect.Interface:
		s.iface(p, t)
	case reflect.Map:
		s.maps(p, t)
	}
	// strings, chans and funcs cannot lead to managed objects
}

func (s *scanner) iface(p unsafe.Pointer, t reflect.Type) {
	v := reflect.NewAt(t, p).Elem()
	if v.IsNil() {
		return
	}
	dt := v.Elem().Type()
	data := (*ifaceWords)(p).data
	if data == nil {
		return
	}
	if reflect2.Type2(dt).LikePtr() {
		// the value is stored directly in the interface word; unwrap
		// single-field structs down to the underlying pointer
		ft := dt
		for ft.Kind() == reflect.Struct && ft.NumField() == 1 {
			ft = ft.Field(0).Type
		}
		if ft.Kind() == reflect.Ptr {
			s.pointer(data, ft.Elem())
		} else {
			s.pointer(data, nil)
		}
		return
	}
	// boxed copy: scan its storage
	if !TypePointers(dt) {
		return
	}
	if _, ok := s.seen[uintptr(data)]; ok {
		return
	}
	s.seen[uintptr(data)] = struct{}{}
	s.value(data, dt)
}

func (s *scanner) maps(p unsafe.Pointer, t reflect.Type) {
	v := reflect.NewAt(t, p).Elem()
	if v.IsNil() {
		return
	}
	kt, vt := t.Key(), t.Elem()
	kp, vp := TypePointers(kt), TypePointers(vt)
	if !kp && !vp {
		return
	}
	tmpK := reflect.New(kt)
	tmpV := reflect.New(vt)
	it := v.MapRange()
	for it.Next() {
		if kp {
			tmpK.Elem().Set(it.Key())
			s.value(tmpK.UnsafePointer(), kt)
		}
		if vp {
			tmpV.Elem().Set(it.Value())
			s.value(tmpV.UnsafePointer(), vt)
		}
	}
}
