package match

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"zigbee-binary-sensor/internal/entity"
)

func newTestRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRegistry(logger)
}

func desc(name, attr string) entity.Descriptor {
	return entity.Descriptor{Name: name, AttributeKey: attr}
}

func names(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Descriptor.Name
	}
	return out
}

func TestResolveNoRegisteredClusters(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"occupancy"}, Descriptor: desc("Occupancy", "occupancy")})

	got := r.Resolve(Signature{Clusters: []string{"basic", "identify"}, Manufacturer: "LUMI"})
	if len(got) != 0 {
		t.Errorf("got %v, want empty", names(got))
	}
	if got := r.Resolve(Signature{}); len(got) != 0 {
		t.Errorf("empty signature: got %v, want empty", names(got))
	}
}

func TestResolveStrictAndMultiPassOnSameCluster(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{Strategy: Strict, Clusters: []string{"on_off"}, Descriptor: desc("Opening", "on_off")})
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"on_off"}, Descriptor: desc("Extra", "on_off")})
	r.MustRegister(Rule{
		Strategy:      Strict,
		Clusters:      []string{"on_off"},
		Manufacturers: []string{"Philips"},
		Descriptor:    desc("Motion", "on_off"),
	})

	got := r.Resolve(Signature{Clusters: []string{"on_off"}, Manufacturer: "Philips", Model: "SML001"})
	want := []string{"Extra", "Motion"}
	if strings.Join(names(got), ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", names(got), want)
	}

	strict := 0
	for _, m := range got {
		if m.Strategy == Strict {
			strict++
		}
	}
	if strict != 1 {
		t.Errorf("strict descriptors = %d, want 1", strict)
	}
}

func TestResolveSpecificStrictOverridesGeneric(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{Strategy: Strict, Clusters: []string{"on_off"}, Descriptor: desc("Opening", "on_off")})
	r.MustRegister(Rule{
		Strategy:      Strict,
		Clusters:      []string{"on_off"},
		Manufacturers: []string{"Philips"},
		Descriptor:    desc("Motion", "on_off"),
	})

	tests := []struct {
		manufacturer string
		want         string
	}{
		{"Philips", "Motion"},
		{"philips", "Opening"}, // case-sensitive
		{"IKEA of Sweden", "Opening"},
		{"", "Opening"},
	}
	for _, tt := range tests {
		got := r.Resolve(Signature{Clusters: []string{"on_off"}, Manufacturer: tt.manufacturer})
		if len(got) != 1 || got[0].Descriptor.Name != tt.want {
			t.Errorf("manufacturer %q: got %v, want [%s]", tt.manufacturer, names(got), tt.want)
		}
	}
}

func TestResolveModelFilters(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{
		Strategy:   MultiPass,
		Clusters:   []string{"opple_cluster"},
		Models:     Models("lumi.airrtc.agl001"),
		Descriptor: desc("WindowOpen", "window_open"),
	})
	r.MustRegister(Rule{
		Strategy:   MultiPass,
		Clusters:   []string{"opple_cluster"},
		Models:     ModelFunc(func(m string) bool { return strings.Contains(m, "plug") }),
		Descriptor: desc("ConsumerConnected", "consumer_connected"),
	})

	tests := []struct {
		model string
		want  []string
	}{
		{"lumi.airrtc.agl001", []string{"WindowOpen"}},
		{"lumi.plug.mmeu01", []string{"ConsumerConnected"}},
		{"lumi.sensor_ht", nil},
		{"", nil}, // missing model never matches a model filter
	}
	for _, tt := range tests {
		got := names(r.Resolve(Signature{Clusters: []string{"opple_cluster"}, Model: tt.model}))
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("model %q: got %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestResolveQuirkAndAuxFilters(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{
		Strategy:   MultiPass,
		Clusters:   []string{"binary_input"},
		QuirkIDs:   []string{"custom.quirk"},
		Descriptor: desc("Quirked", "present_value"),
	})
	r.MustRegister(Rule{
		Strategy: MultiPass,
		Clusters: []string{"binary_input"},
		Aux: []Predicate{func(s Signature) bool {
			return strings.HasPrefix(s.Manufacturer, "_TZ")
		}},
		Descriptor: desc("Tuya", "present_value"),
	})

	got := names(r.Resolve(Signature{Clusters: []string{"binary_input"}, Manufacturer: "_TZ3000", QuirkID: "custom.quirk"}))
	if strings.Join(got, ",") != "Quirked,Tuya" {
		t.Errorf("got %v, want [Quirked Tuya]", got)
	}
	got = names(r.Resolve(Signature{Clusters: []string{"binary_input"}, Manufacturer: "LUMI"}))
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestResolveConfigDiagnosticTagsCategory(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{Strategy: ConfigDiagnostic, Clusters: []string{"opple_cluster"}, Descriptor: desc("Calibrated", "calibrated")})

	got := r.Resolve(Signature{Clusters: []string{"opple_cluster"}})
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}
	if got[0].Descriptor.Category != entity.CategoryDiagnostic {
		t.Errorf("category = %q, want diagnostic", got[0].Descriptor.Category)
	}

	// The stored rule is not mutated.
	if r.Rules()[0].Descriptor.Category != entity.CategoryNone {
		t.Error("registered descriptor was mutated by resolve")
	}
}

func TestResolveOrder(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"ias_zone"}, Descriptor: desc("IASZone", "zone_status")})
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"occupancy"}, Descriptor: desc("Occupancy", "occupancy")})
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"occupancy"}, Descriptor: desc("Occupancy2", "occupancy")})

	got := names(r.Resolve(Signature{Clusters: []string{"occupancy", "basic", "ias_zone", "occupancy"}}))
	want := "Occupancy,Occupancy2,IASZone"
	if strings.Join(got, ",") != want {
		t.Errorf("got %v, want %s", got, want)
	}
}

func TestResolveMultiClusterRule(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"a", "b"}, Descriptor: desc("Both", "x")})

	got := r.Resolve(Signature{Clusters: []string{"b", "a"}})
	if len(got) != 2 || got[0].Cluster != "b" || got[1].Cluster != "a" {
		t.Errorf("got %+v, want one match per cluster in discovery order", got)
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		name string
		rule Rule
	}{
		{"no clusters", Rule{Strategy: Strict, Descriptor: desc("A", "on_off")}},
		{"empty cluster", Rule{Strategy: Strict, Clusters: []string{""}, Descriptor: desc("A", "on_off")}},
		{"no attribute", Rule{Strategy: MultiPass, Clusters: []string{"on_off"}, Descriptor: desc("A", "")}},
		{"no name", Rule{Strategy: MultiPass, Clusters: []string{"on_off"}, Descriptor: desc("", "on_off")}},
		{"empty manufacturers", Rule{Strategy: Strict, Clusters: []string{"on_off"}, Manufacturers: []string{}, Descriptor: desc("A", "on_off")}},
		{"empty models", Rule{Strategy: Strict, Clusters: []string{"on_off"}, Models: Models(), Descriptor: desc("A", "on_off")}},
		{"empty quirks", Rule{Strategy: Strict, Clusters: []string{"on_off"}, QuirkIDs: []string{}, Descriptor: desc("A", "on_off")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.rule)
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("err = %v, want ErrInvalidRule", err)
			}
		})
	}
	if r.Len() != 0 {
		t.Errorf("len = %d, want 0", r.Len())
	}
}

func TestRegisterStrictConflict(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{
		Strategy:      Strict,
		Clusters:      []string{"on_off"},
		Manufacturers: []string{"Philips"},
		Descriptor:    desc("Motion", "on_off"),
	})

	err := r.Register(Rule{Strategy: Strict, Clusters: []string{"on_off"}, Descriptor: desc("Opening", "on_off")})
	if !errors.Is(err, ErrStrictConflict) {
		t.Fatalf("err = %v, want ErrStrictConflict", err)
	}

	// Multi-pass rules never conflict.
	if err := r.Register(Rule{Strategy: MultiPass, Clusters: []string{"on_off"}, Descriptor: desc("Extra", "on_off")}); err != nil {
		t.Errorf("multi-pass register: %v", err)
	}
}

func TestMustRegisterPanics(t *testing.T) {
	r := newTestRegistry()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	r.MustRegister(Rule{Strategy: Strict, Descriptor: desc("A", "on_off")})
}

func TestRegisterCopiesSlices(t *testing.T) {
	r := newTestRegistry()
	manufacturers := []string{"Philips"}
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"on_off"}, Manufacturers: manufacturers, Descriptor: desc("A", "on_off")})
	manufacturers[0] = "IKEA of Sweden"

	if got := r.Resolve(Signature{Clusters: []string{"on_off"}, Manufacturer: "Philips"}); len(got) != 1 {
		t.Errorf("caller mutation leaked into registry: %v", names(got))
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"strict", Strict},
		{"multi", MultiPass},
		{"", MultiPass},
		{"config_diagnostic", ConfigDiagnostic},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := ParseStrategy("sometimes"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestRuleInfo(t *testing.T) {
	lm, err := LuaModel(`model == "x"`)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		models    ModelFilter
		wantList  string
		wantExpr  string
		wantStrat string
	}{
		{Models("SML002", "SML001"), "SML001,SML002", "", "strict"},
		{ModelFunc(func(string) bool { return true }), "", "<func>", "strict"},
		{lm, "", `model == "x"`, "strict"},
		{nil, "", "", "strict"},
	}
	for _, tt := range tests {
		info := Rule{Strategy: Strict, Clusters: []string{"on_off"}, Models: tt.models, Descriptor: desc("Motion", "on_off")}.Info()
		if got := strings.Join(info.Models, ","); got != tt.wantList {
			t.Errorf("models = %q, want %q", got, tt.wantList)
		}
		if info.ModelExpr != tt.wantExpr {
			t.Errorf("model_expr = %q, want %q", info.ModelExpr, tt.wantExpr)
		}
		if info.Strategy != tt.wantStrat {
			t.Errorf("strategy = %q", info.Strategy)
		}
	}
}

func TestResolveMultiPassSharedNameNotCollapsed(t *testing.T) {
	r := newTestRegistry()
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"occupancy"}, Descriptor: desc("Occupancy", "occupancy")})
	pir := desc("Occupancy", "pir_occupancy")
	pir.IDSuffix = "pir"
	r.MustRegister(Rule{Strategy: MultiPass, Clusters: []string{"occupancy"}, Manufacturers: []string{"LUMI"}, Descriptor: pir})

	got := r.Resolve(Signature{Clusters: []string{"occupancy"}, Manufacturer: "LUMI"})
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].Descriptor.AttributeKey != "occupancy" || got[1].Descriptor.AttributeKey != "pir_occupancy" || got[1].Descriptor.IDSuffix != "pir" {
		t.Errorf("got %+v, want generic then LUMI descriptor", got)
	}

	if got := r.Resolve(Signature{Clusters: []string{"occupancy"}, Manufacturer: "Philips"}); len(got) != 1 {
		t.Errorf("non-LUMI: got %d matches, want 1", len(got))
	}
}
