package util

import (
	"errors"
	"fmt"
	"reflect"
)

// checkAttr reports whether m holds attr with the kind dst points to.
func checkAttr(m map[string]any, attr string, dst reflect.Value) error {
	v, exist := m[attr]
	if !exist {
		return ErrLost{attr}
	}
	if v == nil || reflect.TypeOf(v).Kind() != dst.Elem().Kind() {
		return ErrInvalid{attr}
	}
	return nil
}

// bind stores m[attr] into the variable dst points to. Slices are
// converted element by element.
func bind(m map[string]any, attr string, dst reflect.Value) (err error) {
	defer func() {
		// Convert panics on element types that do not fit
		if recover() != nil {
			err = ErrInvalid{attr}
		}
	}()

	elem := dst.Elem()
	if elem.Kind() != reflect.Slice {
		elem.Set(reflect.ValueOf(m[attr]).Convert(elem.Type()))
		return nil
	}
	eType := elem.Type().Elem()
	for _, v := range m[attr].([]any) {
		elem.Set(reflect.Append(elem, reflect.ValueOf(v).Convert(eType)))
	}
	return nil
}

// MustHave fills every pointer in attrList from m. A missing key is
// reported as ErrLost, a value of the wrong kind as ErrInvalid.
func MustHave(m map[string]any, attrList map[string]any) error {
	for key, value := range attrList {
		dst := reflect.ValueOf(value)
		if err := checkAttr(m, key, dst); err != nil {
			return err
		}
		if err := bind(m, key, dst); err != nil {
			return err
		}
	}
	return nil
}

// MayHave is MustHave with missing keys set to their zero value.
func MayHave(m map[string]any, attrList map[string]any) error {
	for key, value := range attrList {
		dst := reflect.ValueOf(value)
		err := checkAttr(m, key, dst)
		switch {
		case errors.Is(err, ErrLost{Attr: key}):
			dst.Elem().Set(reflect.Zero(dst.Elem().Type()))
		case err != nil:
			return err
		default:
			if err := bind(m, key, dst); err != nil {
				return err
			}
		}
	}
	return nil
}

type ErrLost struct {
	Attr string
}

func (e ErrLost) Error() string {
	return fmt.Sprintf("config: lost attribute '%v'", e.Attr)
}

func (e ErrLost) Is(err error) bool {
	t, ok := err.(ErrLost)
	return ok && e.Attr == t.Attr
}

type ErrInvalid struct {
	Attr string
}

func (e ErrInvalid) Error() string {
	return fmt.Sprintf("config: invalid attribute '%v'", e.Attr)
}

func (e ErrInvalid) Is(err error) bool {
	t, ok := err.(ErrInvalid)
	return ok && e.Attr == t.Attr
}
