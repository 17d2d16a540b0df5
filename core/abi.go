package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Variant is the serializer's generic wire-neutral representation —
// anything that round-trips through encoding/json (map[string]any for
// structs, []any for arrays, primitives otherwise).
type Variant = any

// ABIType describes one registered struct/action type: its Go
// representation, plus the minor-version field set active for it (so
// `everipass_v2` can add an optional `memo` field to `everipass` without a
// new registration.
type ABIType struct {
	Name       string
	GoType     reflect.Type
	MinVersion int
}

// Registry is the ABI serializer (C9): a table of structs/actions and the
// to/from-variant, to/from-binary conversions over them.
type Registry struct {
	mu    sync.RWMutex
	types map[string]ABIType
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ABIType)}
}

// RegisterStruct adds (or replaces) the Go type backing an action/struct
// name. sample must be a non-pointer struct value; its reflect.Type is
// what ToVariant/FromVariant marshal through.
func (r *Registry) RegisterStruct(name string, sample any, minVersion int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = ABIType{Name: name, GoType: reflect.TypeOf(sample), MinVersion: minVersion}
}

func (r *Registry) lookup(name string) (ABIType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return ABIType{}, fmt.Errorf("%w: unregistered ABI type %q", ErrInvalidArgument, name)
	}
	return t, nil
}

// ToVariant converts a registered Go struct into its generic Variant form
// (effectively a typed, schema-validated JSON round-trip).
func (r *Registry) ToVariant(name string, obj any) (Variant, error) {
	if _, err := r.lookup(name); err != nil {
		return nil, err
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var v Variant
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return v, nil
}

// FromVariant decodes a Variant into out, a pointer to the registered Go
// type. Uses mapstructure keyed by the json struct tags: a key matches a
// field's tag exactly or case-insensitively, but snake_case and camelCase
// spellings of the same name are not mapped to each other.
func (r *Registry) FromVariant(name string, v Variant, out any) error {
	t, err := r.lookup(name)
	if err != nil {
		return err
	}
	if reflect.TypeOf(out).Elem() != t.GoType {
		return fmt.Errorf("%w: FromVariant target does not match registered type for %q", ErrInvalidArgument, name)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return nil
}

// VariantToBinary and BinaryToVariant give the wire-bytes view other
// components expect; the wire encoding used here is canonical JSON, which is
// a legitimate "binary" contract for a core that never needs to interop with
// a non-Go ABI consumer directly (that translation is an out-of-scope
// JSON/ABI wire layer).
func (r *Registry) VariantToBinary(name string, v Variant) ([]byte, error) {
	if _, err := r.lookup(name); err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return b, nil
}

func (r *Registry) BinaryToVariant(name string, b []byte) (Variant, error) {
	if _, err := r.lookup(name); err != nil {
		return nil, err
	}
	var v Variant
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return v, nil
}
