package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zigbee-binary-sensor/internal/entity"
	"zigbee-binary-sensor/internal/match"
	"zigbee-binary-sensor/internal/zcl"
)

// ManufacturerGroup groups device models under one manufacturer name.
type ManufacturerGroup struct {
	Name   string             `json:"name"`
	Models []DeviceDefinition `json:"models"`
}

// DeviceDefinition holds per-model overrides applied at discovery.
type DeviceDefinition struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	FriendlyName string `json:"friendly_name,omitempty"`
	// QuirkID is assigned when the announce carries none.
	QuirkID    string           `json:"quirk_id,omitempty"`
	Properties []PropertySource `json:"properties,omitempty"`
}

// RuleDef is the device file form of a binary sensor match rule.
type RuleDef struct {
	Name          string   `json:"name"`
	Strategy      string   `json:"strategy,omitempty"`
	Clusters      []string `json:"clusters"`
	Manufacturers []string `json:"manufacturers,omitempty"`
	Models        []string `json:"models,omitempty"`
	ModelExpr     string   `json:"model_expr,omitempty"`
	QuirkIDs      []string `json:"quirk_ids,omitempty"`
	Attribute     string   `json:"attribute"`
	IDSuffix      string   `json:"id_suffix,omitempty"`
	DeviceClass   string   `json:"device_class,omitempty"`
	Category      string   `json:"entity_category,omitempty"`
	DisplayName   string   `json:"display_name,omitempty"`
	Parser        string   `json:"parser,omitempty"`
	// ZoneTypeClass derives the device class from the cluster's zone_type.
	ZoneTypeClass bool `json:"zone_type_class,omitempty"`
}

// Rule converts the definition into a match rule.
func (d RuleDef) Rule() (match.Rule, error) {
	strategy, err := match.ParseStrategy(d.Strategy)
	if err != nil {
		return match.Rule{}, fmt.Errorf("%w: %s: %v", match.ErrInvalidRule, d.Name, err)
	}
	class, ok := entity.ParseDeviceClass(d.DeviceClass)
	if !ok {
		return match.Rule{}, fmt.Errorf("%w: %s: unknown device class %q", match.ErrInvalidRule, d.Name, d.DeviceClass)
	}
	parse, ok := entity.ParserByName(d.Parser)
	if !ok {
		return match.Rule{}, fmt.Errorf("%w: %s: unknown parser %q", match.ErrInvalidRule, d.Name, d.Parser)
	}

	var category entity.Category
	switch d.Category {
	case "":
	case string(entity.CategoryConfig), string(entity.CategoryDiagnostic):
		category = entity.Category(d.Category)
	default:
		return match.Rule{}, fmt.Errorf("%w: %s: unknown entity category %q", match.ErrInvalidRule, d.Name, d.Category)
	}

	rule := match.Rule{
		Strategy:      strategy,
		Clusters:      d.Clusters,
		Manufacturers: d.Manufacturers,
		QuirkIDs:      d.QuirkIDs,
		Descriptor: entity.Descriptor{
			Name:         d.Name,
			IDSuffix:     d.IDSuffix,
			AttributeKey: d.Attribute,
			DeviceClass:  class,
			Category:     category,
			DisplayName:  d.DisplayName,
			Parse:        parse,
		},
	}
	if d.ZoneTypeClass {
		rule.Descriptor.ResolveClass = entity.ZoneTypeResolver
	}

	switch {
	case d.Models != nil && d.ModelExpr != "":
		return match.Rule{}, fmt.Errorf("%w: %s: models and model_expr are exclusive", match.ErrInvalidRule, d.Name)
	case d.Models != nil:
		rule.Models = match.Models(d.Models...)
	case d.ModelExpr != "":
		rule.Models, err = match.LuaModel(d.ModelExpr)
		if err != nil {
			return match.Rule{}, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	return rule, nil
}

// DeviceDB holds device definitions keyed by manufacturer+model.
type DeviceDB struct {
	defs map[string]*DeviceDefinition
}

func deviceKey(manufacturer, model string) string {
	return manufacturer + "\x00" + model
}

// NewDeviceDB creates an empty device database.
func NewDeviceDB() *DeviceDB {
	return &DeviceDB{defs: make(map[string]*DeviceDefinition)}
}

// Add inserts a device definition into the database.
func (db *DeviceDB) Add(def DeviceDefinition) {
	cp := def
	db.defs[deviceKey(def.Manufacturer, def.Model)] = &cp
}

// Lookup finds a device definition by manufacturer and model.
func (db *DeviceDB) Lookup(manufacturer, model string) *DeviceDefinition {
	if db == nil {
		return nil
	}
	return db.defs[deviceKey(manufacturer, model)]
}

// Len returns the number of device definitions.
func (db *DeviceDB) Len() int {
	return len(db.defs)
}

// deviceFile is the JSON structure for files in the devices directory.
type deviceFile struct {
	Clusters      []zcl.ClusterDef    `json:"clusters,omitempty"`
	Devices       []DeviceDefinition  `json:"devices,omitempty"`
	Manufacturers []ManufacturerGroup `json:"manufacturers,omitempty"`
	BinarySensors []RuleDef           `json:"binary_sensors,omitempty"`
}

// LoadDeviceDir reads all *.json files from a directory, registering custom
// clusters and binary sensor rules and collecting device definitions.
// Returns an empty DeviceDB (not an error) if the directory doesn't exist or is empty.
// Files are processed in name order so rule registration order is stable.
func LoadDeviceDir(dir string, clusters *zcl.Registry, rules *match.Registry, logger *slog.Logger) (*DeviceDB, error) {
	db := NewDeviceDB()

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return db, fmt.Errorf("glob devices dir: %w", err)
	}
	if len(paths) == 0 {
		logger.Info("no device definition files found", "dir", dir)
		return db, nil
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return db, fmt.Errorf("read %s: %w", path, err)
		}

		var df deviceFile
		if err := json.Unmarshal(data, &df); err != nil {
			return db, fmt.Errorf("parse %s: %w", path, err)
		}

		for _, c := range df.Clusters {
			clusters.Register(c)
		}

		defs := df.Devices
		for _, mg := range df.Manufacturers {
			for _, d := range mg.Models {
				d.Manufacturer = mg.Name
				defs = append(defs, d)
			}
		}
		for _, d := range defs {
			for _, ps := range d.Properties {
				if err := ps.validate(); err != nil {
					return db, fmt.Errorf("%s: %s %s: %w", path, d.Manufacturer, d.Model, err)
				}
			}
			db.Add(d)
		}

		for _, rd := range df.BinarySensors {
			rule, err := rd.Rule()
			if err != nil {
				return db, fmt.Errorf("%s: %w", path, err)
			}
			if err := rules.Register(rule); err != nil {
				return db, fmt.Errorf("%s: %w", path, err)
			}
		}

		logger.Info("loaded device file", "path", filepath.Base(path),
			"clusters", len(df.Clusters), "devices", len(defs), "binary_sensors", len(df.BinarySensors))
	}

	logger.Info("device database loaded", "files", len(paths), "devices", db.Len(), "rules", rules.Len())
	return db, nil
}
