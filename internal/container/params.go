package container

import (
	"gopkg.in/yaml.v3"

	errors2 "github.com/xraph/brew/internal/errors"
)

// ParameterBinder resolves named external parameters requested by
// producers. The parameter map is fixed at engine construction; no type
// coercion is performed beyond what the producer itself enforces.
type ParameterBinder struct {
	values map[string]any
}

// NewParameterBinder copies the supplied map so later caller mutations
// cannot leak into resolutions.
func NewParameterBinder(values map[string]any) *ParameterBinder {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &ParameterBinder{values: copied}
}

// Bind resolves the specs in order. A missing required parameter fails with
// a ConstructionError naming the bean and the parameter.
func (b *ParameterBinder) Bind(beanID string, specs []ParamSpec) ([]Arg, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	args := make([]Arg, 0, len(specs))
	for _, spec := range specs {
		value, ok := b.values[spec.Name]
		switch {
		case ok:
		case spec.HasDefault:
			value = spec.Default
		case spec.Required:
			return nil, errors2.NewConstructionErrorf(beanID, "missing required parameter %q", spec.Name)
		default:
			value = nil
		}
		args = append(args, Arg{Name: spec.Name, Value: value})
	}
	return args, nil
}

// Lookup returns the raw parameter value, if present.
func (b *ParameterBinder) Lookup(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// ParamsFromYAML decodes a flat YAML mapping into a parameter map suitable
// for engine construction.
func ParamsFromYAML(data []byte) (map[string]any, error) {
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}
