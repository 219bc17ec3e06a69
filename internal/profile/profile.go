package profile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vehicle describes which attribute keys influence routing for a travel mode.
// Whitelisted keys belong in the edge profile pool, all others in edge meta.
type Vehicle struct {
	Name      string
	whitelist map[string]struct{}
}

// NewVehicle creates a vehicle with the given profile whitelist
func NewVehicle(name string, whitelist ...string) *Vehicle {
	v := &Vehicle{
		Name:      name,
		whitelist: make(map[string]struct{}, len(whitelist)),
	}
	for _, k := range whitelist {
		v.whitelist[k] = struct{}{}
	}
	return v
}

// IsProfileKey returns true if key affects routing
func (v *Vehicle) IsProfileKey(key string) bool {
	_, ok := v.whitelist[key]
	return ok
}

// Whitelist returns the whitelisted keys, sorted
func (v *Vehicle) Whitelist() []string {
	keys := make([]string, 0, len(v.whitelist))
	for k := range v.whitelist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var builtins = map[string][]string{
	"car": {
		"access", "highway", "junction", "maxspeed", "motor_vehicle",
		"motorcar", "oneway", "vehicle",
	},
	"bicycle": {
		"access", "bicycle", "cycleway", "highway", "junction",
		"oneway", "oneway:bicycle", "vehicle",
	},
	"pedestrian": {
		"access", "foot", "footway", "highway", "junction",
	},
}

// Builtin returns a predefined vehicle by name
func Builtin(name string) (*Vehicle, error) {
	keys, ok := builtins[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown vehicle %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return NewVehicle(strings.ToLower(name), keys...), nil
}

// BuiltinNames lists the predefined vehicles
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config is the YAML form of a vehicle profile
//
//	name: truck
//	extends: car
//	whitelist:
//	  - maxweight
//	  - hgv
type Config struct {
	Name      string   `yaml:"name"`
	Extends   string   `yaml:"extends,omitempty"`
	Whitelist []string `yaml:"whitelist"`
}

// Parse reads a vehicle profile from YAML
func Parse(data []byte) (*Vehicle, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("profile name is required")
	}

	keys := cfg.Whitelist
	if cfg.Extends != "" {
		base, err := Builtin(cfg.Extends)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", cfg.Name, err)
		}
		keys = append(base.Whitelist(), keys...)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("profile %q has an empty whitelist", cfg.Name)
	}

	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("profile %q: whitelist contains an empty key", cfg.Name)
		}
	}
	return NewVehicle(cfg.Name, keys...), nil
}

// LoadFile reads a vehicle profile from a YAML file
func LoadFile(path string) (*Vehicle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return Parse(data)
}

// Resolve returns the vehicle from path when set, else the builtin by name
func Resolve(name, path string) (*Vehicle, error) {
	if path != "" {
		return LoadFile(path)
	}
	return Builtin(name)
}
