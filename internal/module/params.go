package module

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/vk/texturesets/internal/definition"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Params are the ordered parameters of one invocation.
type Params []definition.Parameter

// Lookup returns the value of the named parameter.
func (p Params) Lookup(name string) (cty.Value, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return cty.NilVal, false
}

// Only fails when a parameter outside allowed is present.
func (p Params) Only(allowed ...string) error {
	for _, param := range p {
		if !slices.Contains(allowed, param.Name) {
			return fmt.Errorf("unknown parameter %q (allowed: %v)", param.Name, allowed)
		}
	}
	return nil
}

// Decode converts the named parameter into target, which must be a pointer.
// A missing or null parameter leaves target untouched so callers can
// pre-populate defaults.
func (p Params) Decode(name string, target any) error {
	val, ok := p.Lookup(name)
	if !ok || val.IsNull() {
		return nil
	}
	if !val.IsWhollyKnown() {
		return fmt.Errorf("parameter %q is not known", name)
	}
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		return fmt.Errorf("parameter %q: target must be a non-nil pointer, got %T", name, target)
	}
	ty, err := gocty.ImpliedType(ptr.Elem().Interface())
	if err != nil {
		return fmt.Errorf("parameter %q: %w", name, err)
	}
	converted, err := convert.Convert(val, ty)
	if err != nil {
		return fmt.Errorf("parameter %q: cannot use %s as %s: %w", name, val.Type().FriendlyName(), ty.FriendlyName(), err)
	}
	if err := gocty.FromCtyValue(converted, target); err != nil {
		return fmt.Errorf("parameter %q: %w", name, err)
	}
	return nil
}

// Float decodes a numeric parameter, falling back to def.
func (p Params) Float(name string, def float64) (float64, error) {
	v := def
	err := p.Decode(name, &v)
	return v, err
}

// Bool decodes a boolean parameter, falling back to def.
func (p Params) Bool(name string, def bool) (bool, error) {
	v := def
	err := p.Decode(name, &v)
	return v, err
}

// String decodes a string parameter, falling back to def.
func (p Params) String(name string, def string) (string, error) {
	v := def
	err := p.Decode(name, &v)
	return v, err
}

// Int decodes an integer parameter, falling back to def.
func (p Params) Int(name string, def int) (int, error) {
	v := def
	err := p.Decode(name, &v)
	return v, err
}
