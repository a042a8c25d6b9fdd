// Package nn provides the parameter model consumed by the optimizers:
// trainable parameters with dense or sparse gradients, modules that expose
// them, and state dictionaries for checkpointing.
package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/adatrain/internal/tensor"
)

// Module is the base interface for all components holding parameters.
//
// StateDict keys are stable names (e.g. "weight", "0.bias") and the values
// alias the live parameter tensors. LoadStateDict copies values in and must
// reject missing keys and shape mismatches.
type Module interface {
	Parameters() []*Parameter
	StateDict() map[string]*tensor.Tensor
	LoadStateDict(stateDict map[string]*tensor.Tensor) error
}

// ParamStateDict builds a state dictionary keyed by parameter name.
func ParamStateDict(params []*Parameter) map[string]*tensor.Tensor {
	stateDict := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		stateDict[p.Name()] = p.Tensor()
	}
	return stateDict
}

// LoadParams copies a state dictionary into params by name.
func LoadParams(params []*Parameter, stateDict map[string]*tensor.Tensor) error {
	for _, p := range params {
		src, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("missing %s in state dict", p.Name())
		}
		if !src.Shape().Equal(p.Shape()) {
			return fmt.Errorf("%s shape mismatch: expected %v, got %v", p.Name(), p.Shape(), src.Shape())
		}
		if src.DType() != tensor.Float32 {
			return fmt.Errorf("%s dtype mismatch: expected float32, got %v", p.Name(), src.DType())
		}
		copy(p.Tensor().Float32s(), src.Float32s())
	}
	return nil
}

// ZeroGrad clears the gradients of params.
func ZeroGrad(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// Container groups named child modules. Child state-dict keys are prefixed
// with "<child>.".
//
// Example:
//
//	model := nn.NewContainer()
//	model.Add("embed", nn.NewEmbedding(vocab, 50, 0, rng))
//	model.Add("out", nn.NewLinear(50, classes, rng))
type Container struct {
	names    []string
	children map[string]Module
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{children: make(map[string]Module)}
}

// Add registers a child. Panics on a duplicate or dotted name.
func (c *Container) Add(name string, m Module) *Container {
	if _, ok := c.children[name]; ok {
		panic(fmt.Sprintf("container: duplicate child %q", name))
	}
	if name == "" || strings.Contains(name, ".") {
		panic(fmt.Sprintf("container: invalid child name %q", name))
	}
	c.names = append(c.names, name)
	c.children[name] = m
	return c
}

// Child returns the named child, or nil.
func (c *Container) Child(name string) Module {
	return c.children[name]
}

// Parameters returns all child parameters in registration order.
func (c *Container) Parameters() []*Parameter {
	var params []*Parameter
	for _, name := range c.names {
		params = append(params, c.children[name].Parameters()...)
	}
	return params
}

// StateDict returns the prefixed union of child state dictionaries.
func (c *Container) StateDict() map[string]*tensor.Tensor {
	stateDict := make(map[string]*tensor.Tensor)
	for _, name := range c.names {
		for k, v := range c.children[name].StateDict() {
			stateDict[name+"."+k] = v
		}
	}
	return stateDict
}

// LoadStateDict routes prefixed keys to children.
func (c *Container) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	parts := make(map[string]map[string]*tensor.Tensor, len(c.names))
	for key, v := range stateDict {
		name, rest, ok := strings.Cut(key, ".")
		if !ok {
			return fmt.Errorf("unexpected key %q in state dict", key)
		}
		if _, known := c.children[name]; !known {
			return fmt.Errorf("unexpected key %q in state dict", key)
		}
		if parts[name] == nil {
			parts[name] = make(map[string]*tensor.Tensor)
		}
		parts[name][rest] = v
	}
	for _, name := range c.names {
		if err := c.children[name].LoadStateDict(parts[name]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// SortedKeys returns the keys of a state dictionary in lexical order.
func SortedKeys(stateDict map[string]*tensor.Tensor) []string {
	keys := make([]string, 0, len(stateDict))
	for k := range stateDict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
