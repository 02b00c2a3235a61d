// Package match resolves which binary sensor descriptors apply to a
// discovered device, given the clusters it exposes and its identity.
package match

import (
	"fmt"
	"slices"

	"zigbee-binary-sensor/internal/entity"
)

// Strategy controls how a rule participates in resolution.
type Strategy int

const (
	// Strict yields at most one descriptor per cluster; the most recently
	// registered matching rule wins.
	Strict Strategy = iota
	// MultiPass contributes every matching rule.
	MultiPass
	// ConfigDiagnostic behaves like MultiPass and tags the entity diagnostic.
	ConfigDiagnostic
)

func (s Strategy) String() string {
	switch s {
	case Strict:
		return "strict"
	case MultiPass:
		return "multi"
	case ConfigDiagnostic:
		return "config_diagnostic"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses the device file spelling of a strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "strict":
		return Strict, nil
	case "multi", "multipass", "":
		return MultiPass, nil
	case "config_diagnostic", "diagnostic":
		return ConfigDiagnostic, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// Signature is the identity of a discovered device (or one of its endpoints).
// Empty Model and QuirkID mean the value is unknown.
type Signature struct {
	Clusters     []string `json:"clusters"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	QuirkID      string   `json:"quirk_id,omitempty"`
}

// Predicate is an additional filter evaluated against the whole signature.
type Predicate func(Signature) bool

// Rule binds a device signature pattern to a descriptor.
type Rule struct {
	Strategy      Strategy
	Clusters      []string
	Manufacturers []string    // nil: any manufacturer
	Models        ModelFilter // nil: any model
	QuirkIDs      []string    // nil: any quirk
	Aux           []Predicate
	Descriptor    entity.Descriptor
}

func (r *Rule) hasFilters() bool {
	return r.Manufacturers != nil || r.Models != nil || r.QuirkIDs != nil || len(r.Aux) > 0
}

func (r *Rule) matches(sig Signature) bool {
	if r.Manufacturers != nil && !slices.Contains(r.Manufacturers, sig.Manufacturer) {
		return false
	}
	if r.Models != nil && (sig.Model == "" || !r.Models.MatchModel(sig.Model)) {
		return false
	}
	if r.QuirkIDs != nil && (sig.QuirkID == "" || !slices.Contains(r.QuirkIDs, sig.QuirkID)) {
		return false
	}
	for _, p := range r.Aux {
		if !p(sig) {
			return false
		}
	}
	return true
}

func (r *Rule) validate() error {
	if r.Descriptor.Name == "" {
		return fmt.Errorf("%w: descriptor has no name", ErrInvalidRule)
	}
	if len(r.Clusters) == 0 {
		return fmt.Errorf("%w: %s: no cluster names", ErrInvalidRule, r.Descriptor.Name)
	}
	for _, c := range r.Clusters {
		if c == "" {
			return fmt.Errorf("%w: %s: empty cluster name", ErrInvalidRule, r.Descriptor.Name)
		}
	}
	if r.Descriptor.AttributeKey == "" {
		return fmt.Errorf("%w: %s: no attribute key", ErrInvalidRule, r.Descriptor.Name)
	}
	if r.Manufacturers != nil && len(r.Manufacturers) == 0 {
		return fmt.Errorf("%w: %s: empty manufacturer set", ErrInvalidRule, r.Descriptor.Name)
	}
	if r.QuirkIDs != nil && len(r.QuirkIDs) == 0 {
		return fmt.Errorf("%w: %s: empty quirk id set", ErrInvalidRule, r.Descriptor.Name)
	}
	if m, ok := r.Models.(exactModels); ok && len(m) == 0 {
		return fmt.Errorf("%w: %s: empty model set", ErrInvalidRule, r.Descriptor.Name)
	}
	for _, p := range r.Aux {
		if p == nil {
			return fmt.Errorf("%w: %s: nil predicate", ErrInvalidRule, r.Descriptor.Name)
		}
	}
	return nil
}

// ModelFilter matches a device model. It is only consulted for devices that
// report a model.
type ModelFilter interface {
	MatchModel(model string) bool
}

type exactModels map[string]struct{}

func (m exactModels) MatchModel(model string) bool {
	_, ok := m[model]
	return ok
}

// Models matches any of the given model strings exactly.
func Models(models ...string) ModelFilter {
	m := make(exactModels, len(models))
	for _, s := range models {
		m[s] = struct{}{}
	}
	return m
}

// ModelFunc adapts a predicate to a ModelFilter.
type ModelFunc func(model string) bool

func (f ModelFunc) MatchModel(model string) bool {
	return f(model)
}

// RuleInfo is the serializable view of a rule.
type RuleInfo struct {
	Strategy      string            `json:"strategy"`
	Clusters      []string          `json:"clusters"`
	Manufacturers []string          `json:"manufacturers,omitempty"`
	Models        []string          `json:"models,omitempty"`
	ModelExpr     string            `json:"model_expr,omitempty"`
	QuirkIDs      []string          `json:"quirk_ids,omitempty"`
	Predicates    int               `json:"predicates,omitempty"`
	Descriptor    entity.Descriptor `json:"descriptor"`
}

// Info describes the rule. Go model predicates are reported as "<func>".
func (r Rule) Info() RuleInfo {
	info := RuleInfo{
		Strategy:      r.Strategy.String(),
		Clusters:      r.Clusters,
		Manufacturers: r.Manufacturers,
		QuirkIDs:      r.QuirkIDs,
		Predicates:    len(r.Aux),
		Descriptor:    r.Descriptor,
	}
	switch m := r.Models.(type) {
	case nil:
	case exactModels:
		for s := range m {
			info.Models = append(info.Models, s)
		}
		slices.Sort(info.Models)
	case fmt.Stringer:
		info.ModelExpr = m.String()
	default:
		info.ModelExpr = "<func>"
	}
	return info
}
