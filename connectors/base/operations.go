// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"fmt"
	"strings"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// OperationFunc performs one operation. Parameters have already been
// validated against the capability when it runs.
type OperationFunc func(ctx context.Context, req *types.OperationRequest) (*Result, error)

// Operation pairs a capability with the code that performs it
type Operation struct {
	Capability types.Capability
	Handler    OperationFunc
}

// OperationTable maps canonical operation names and their aliases onto one
// entry each. Aliases are resolved when the operation is registered, so
// lookups on the request path are a single map read.
type OperationTable struct {
	service string
	ops     []*Operation
	index   map[string]*Operation
}

// NewOperationTable creates an empty table for a service
func NewOperationTable(service string) *OperationTable {
	return &OperationTable{
		service: service,
		index:   make(map[string]*Operation),
	}
}

// Register adds an operation. The capability's permission defaults to
// "<service>:<name>". Names and aliases must be unique within the table.
func (t *OperationTable) Register(capability types.Capability, fn OperationFunc) error {
	if capability.Name == "" {
		return fmt.Errorf("%s: operation name is required", t.service)
	}
	if fn == nil {
		return fmt.Errorf("%s: operation %q has no handler", t.service, capability.Name)
	}
	for _, name := range capability.Names() {
		if name == "" {
			return fmt.Errorf("%s: operation %q has an empty alias", t.service, capability.Name)
		}
		if existing, ok := t.index[name]; ok {
			return fmt.Errorf("%s: name %q already registered for operation %q", t.service, name, existing.Capability.Name)
		}
	}
	if capability.Permission == "" {
		capability.Permission = t.service + ":" + capability.Name
	}
	capability.Aliases = append([]string(nil), capability.Aliases...)
	capability.Parameters = append([]types.Parameter(nil), capability.Parameters...)

	op := &Operation{Capability: capability, Handler: fn}
	t.ops = append(t.ops, op)
	for _, name := range capability.Names() {
		t.index[name] = op
	}
	return nil
}

// MustRegister is Register for static tables built in constructors
func (t *OperationTable) MustRegister(capability types.Capability, fn OperationFunc) {
	if err := t.Register(capability, fn); err != nil {
		panic(err)
	}
}

// Resolve finds the operation for a canonical name or alias
func (t *OperationTable) Resolve(name string) (*Operation, bool) {
	op, ok := t.index[name]
	return op, ok
}

// Names returns every accepted operation name, canonical names first
func (t *OperationTable) Names() []string {
	names := make([]string, 0, len(t.index))
	for _, op := range t.ops {
		names = append(names, op.Capability.Name)
	}
	for _, op := range t.ops {
		names = append(names, op.Capability.Aliases...)
	}
	return names
}

// Capabilities returns a copy of the catalog in registration order
func (t *OperationTable) Capabilities() []types.Capability {
	caps := make([]types.Capability, 0, len(t.ops))
	for _, op := range t.ops {
		c := op.Capability
		c.Aliases = append([]string(nil), c.Aliases...)
		c.Parameters = append([]types.Parameter(nil), c.Parameters...)
		caps = append(caps, c)
	}
	return caps
}

// Validate checks the operation name and its required parameters
func (t *OperationTable) Validate(req *types.OperationRequest) error {
	if req == nil || strings.TrimSpace(req.Operation) == "" {
		return types.NewValidationError(types.CodeInvalidRequest, "operation is required", map[string]interface{}{
			"service": t.service,
		})
	}
	op, ok := t.Resolve(req.Operation)
	if !ok {
		return types.NewUnknownOperationError(t.service, req.Operation, t.Names())
	}
	if missing := MissingParameters(op.Capability, req); len(missing) > 0 {
		return types.NewMissingParameterError(req.Operation, missing)
	}
	return nil
}

// Execute validates the request and runs the resolved operation
func (t *OperationTable) Execute(ctx context.Context, req *types.OperationRequest) (*Result, error) {
	if err := t.Validate(req); err != nil {
		return nil, err
	}
	op, _ := t.Resolve(req.Operation)
	return op.Handler(ctx, req)
}

// MissingParameters lists the required parameters the request lacks. A
// positional parameter may also be supplied as an option of the same name.
func MissingParameters(capability types.Capability, req *types.OperationRequest) []string {
	var missing []string
	pos := 0
	for _, p := range capability.Parameters {
		if p.Positional {
			idx := pos
			pos++
			if !p.Required {
				continue
			}
			if req.Arg(idx) != "" || req.StringOption(p.Name, "") != "" {
				continue
			}
			missing = append(missing, p.Name)
			continue
		}
		if !p.Required {
			continue
		}
		if !req.HasOption(p.Name) {
			missing = append(missing, p.Name)
			continue
		}
		if s, ok := req.Options[p.Name].(string); ok && s == "" {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// Param returns the positional argument at index, falling back to the
// option called name
func Param(req *types.OperationRequest, index int, name string) string {
	if v := req.Arg(index); v != "" {
		return v
	}
	return req.StringOption(name, "")
}
