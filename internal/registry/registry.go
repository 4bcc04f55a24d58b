// Provider definitions and route resolution.
//
// Definitions are loaded once at process start and never mutated afterwards,
// so lookups need no locking.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/requestdirectory/gateway/internal/ledger"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrPathNotFound     = errors.New("invalid request path")
)

type InputType string

const (
	InputJSON InputType = "json"
	InputForm InputType = "formdata"
)

// Parameter describes one input or output field of an endpoint. Name,
// Description and Blur are display hints consumed by the directory UI, not
// by the gateway.
type Parameter struct {
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Blur        bool   `yaml:"blur,omitempty"`
}

type Input struct {
	Type       InputType            `yaml:"type"`
	Parameters map[string]Parameter `yaml:"parameters"`
}

type Output struct {
	Type       string               `yaml:"type"`
	Parameters map[string]Parameter `yaml:"parameters"`
}

type Endpoint struct {
	Input  Input   `yaml:"input"`
	Output *Output `yaml:"output,omitempty"`
}

type Pricing struct {
	Type  string  `yaml:"type"` // only "fixed" is supported
	Price float64 `yaml:"price"`
}

// Definition is one provider exposed through the gateway. API keys follow
// the "@{method}/{path}" form, e.g. "@post/download".
type Definition struct {
	Name        string              `yaml:"name"`
	Slug        string              `yaml:"slug"`
	Description string              `yaml:"description,omitempty"`
	Tag         string              `yaml:"tag,omitempty"`
	Host        string              `yaml:"host"`
	Port        int                 `yaml:"port"`
	Enabled     bool                `yaml:"-"` // set from {SLUG}_ENABLED at load
	Pricing     Pricing             `yaml:"pricing"`
	API         map[string]Endpoint `yaml:"api"`
}

// PricePerCall is the fixed amount reserved for every call to this provider.
func (d *Definition) PricePerCall() ledger.Amount {
	return ledger.FromUSD(d.Pricing.Price)
}

func endpointKey(method, subPath string) string {
	return "@" + strings.ToLower(method) + "/" + strings.Trim(subPath, "/")
}

type Registry struct {
	defs    map[string]*Definition
	ordered []*Definition
}

func New(defs []*Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if d.Slug == "" {
			return nil, fmt.Errorf("provider %q has no slug", d.Name)
		}
		if _, dup := r.defs[d.Slug]; dup {
			return nil, fmt.Errorf("duplicate provider slug %q", d.Slug)
		}
		r.defs[d.Slug] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// Resolve returns the definition for slug. Disabled providers are returned
// normally; refusing to serve them is the orchestrator's call.
func (r *Registry) Resolve(slug string) (*Definition, error) {
	d, ok := r.defs[slug]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return d, nil
}

func (r *Registry) ResolveEndpoint(d *Definition, method, subPath string) (*Endpoint, error) {
	ep, ok := d.API[endpointKey(method, subPath)]
	if !ok {
		return nil, ErrPathNotFound
	}
	return &ep, nil
}

// Providers returns all definitions in load order.
func (r *Registry) Providers() []*Definition {
	return r.ordered
}
