package validator

import (
	"reflect"

	"github.com/gin-gonic/gin/binding"
)

var _ binding.StructValidator = (*ginValidator)(nil)

// ginValidator 让 gin 的绑定流程使用同一套校验规则。
type ginValidator struct {
	v *Validator
}

// ValidateStruct validates structs, pointers to structs and slices of them.
func (g *ginValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	val := reflect.ValueOf(obj)
	switch val.Kind() {
	case reflect.Ptr:
		if val.IsNil() {
			return nil
		}
		return g.ValidateStruct(val.Elem().Interface())
	case reflect.Struct:
		return g.v.Validate(obj)
	case reflect.Slice, reflect.Array:
		for i := 0; i < val.Len(); i++ {
			if err := g.ValidateStruct(val.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Engine returns the underlying validator engine.
func (g *ginValidator) Engine() any {
	return g.v.Engine()
}

// InstallGinBinding replaces gin's default binding validator with v.
func InstallGinBinding(v *Validator) {
	binding.Validator = &ginValidator{v: v}
}
