package match

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"zigbee-binary-sensor/internal/entity"
)

var (
	// ErrInvalidRule is returned for rules that can never match.
	ErrInvalidRule = errors.New("invalid match rule")
	// ErrStrictConflict is returned when an unfiltered strict rule would
	// shadow a strict rule already registered on the same cluster.
	ErrStrictConflict = errors.New("strict rule conflict")
)

// Match is one resolved descriptor and the cluster it binds to.
type Match struct {
	Cluster    string            `json:"cluster"`
	Strategy   Strategy          `json:"-"`
	Descriptor entity.Descriptor `json:"descriptor"`
}

type entry struct {
	seq  int
	rule *Rule
}

// Registry holds match rules indexed by cluster name.
type Registry struct {
	mu        sync.RWMutex
	rules     []*Rule
	byCluster map[string][]entry
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byCluster: make(map[string][]entry),
		logger:    logger,
	}
}

// Register validates a rule and indexes it under each of its cluster names.
func (r *Registry) Register(rule Rule) error {
	if err := rule.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.Strategy == Strict && !rule.hasFilters() {
		for _, c := range rule.Clusters {
			for _, e := range r.byCluster[c] {
				if e.rule.Strategy == Strict {
					return fmt.Errorf("%w: %s on %q would shadow %s",
						ErrStrictConflict, rule.Descriptor.Name, c, e.rule.Descriptor.Name)
				}
			}
		}
	}

	cp := rule
	cp.Clusters = slices.Clone(rule.Clusters)
	cp.Manufacturers = slices.Clone(rule.Manufacturers)
	cp.QuirkIDs = slices.Clone(rule.QuirkIDs)
	cp.Aux = slices.Clone(rule.Aux)

	seq := len(r.rules)
	r.rules = append(r.rules, &cp)
	for _, c := range cp.Clusters {
		if slices.ContainsFunc(r.byCluster[c], func(e entry) bool { return e.seq == seq }) {
			continue
		}
		r.byCluster[c] = append(r.byCluster[c], entry{seq: seq, rule: &cp})
	}

	r.logger.Debug("binary sensor rule registered",
		"name", cp.Descriptor.Name,
		"strategy", cp.Strategy.String(),
		"clusters", cp.Clusters,
	)
	return nil
}

// MustRegister is like Register but panics on error. Used for built-in rules.
func (r *Registry) MustRegister(rule Rule) {
	if err := r.Register(rule); err != nil {
		panic(err)
	}
}

// Resolve returns the descriptors that apply to a device. Results follow the
// device's cluster order, then registration order within a cluster.
func (r *Registry) Resolve(sig Signature) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Match
	seenCluster := make(map[string]bool, len(sig.Clusters))
	for _, c := range sig.Clusters {
		if seenCluster[c] {
			continue
		}
		seenCluster[c] = true

		candidates := r.byCluster[c]
		if len(candidates) == 0 {
			continue
		}

		// Most recently registered strict rule that matches wins.
		strictSeq := -1
		for i := len(candidates) - 1; i >= 0; i-- {
			e := candidates[i]
			if e.rule.Strategy == Strict && e.rule.matches(sig) {
				strictSeq = e.seq
				break
			}
		}

		// Each registered rule appears at most once per cluster, so rules
		// sharing a descriptor Name are still emitted separately.
		for _, e := range candidates {
			switch e.rule.Strategy {
			case Strict:
				if e.seq != strictSeq {
					continue
				}
			default:
				if !e.rule.matches(sig) {
					continue
				}
			}
			d := e.rule.Descriptor
			if e.rule.Strategy == ConfigDiagnostic {
				d.Category = entity.CategoryDiagnostic
			}
			out = append(out, Match{Cluster: c, Strategy: e.rule.Strategy, Descriptor: d})
		}
	}
	return out
}

// Rules returns a copy of all registered rules in registration order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, *rule)
	}
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
