// Package config implements the hierarchical tunable-registration system
// used by the scheduler subsystems that expose tunables (internal/eevdf,
// internal/balance, internal/irq, and cmd/eevdfsim's own module). Each subsystem
// registers a Module of named flags against a shared Config; values can
// be set from the command line, or loaded in bulk from a YAML file, the
// same split the teacher's pkg/config offers between flag.FlagSet-driven
// defaults and file-driven runtime overrides.
package config

import (
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
)

// Config is a named collection of Modules, each owning a disjoint set of
// flag names.
type Config struct {
	name    string
	modules map[string]*Module
	order   []string
}

// Module is one subsystem's set of tunables, backed by a flag.FlagSet so
// every value doubles as a command-line flag.
type Module struct {
	name        string
	description string
	*flag.FlagSet
}

// New creates an empty, named configuration collection.
func New(name string) *Config {
	return &Config{name: name, modules: make(map[string]*Module)}
}

// RegisterModule creates and attaches a new Module to the Config. It is
// a programming error to register the same module name twice.
func (c *Config) RegisterModule(name, description string) *Module {
	if _, exists := c.modules[name]; exists {
		panic(fmt.Sprintf("config: module %q already registered", name))
	}
	m := &Module{
		name:        name,
		description: description,
		FlagSet:     flag.NewFlagSet(name, flag.ContinueOnError),
	}
	c.modules[name] = m
	c.order = append(c.order, name)
	return m
}

// Parse applies command-line style arguments ("-name=value", ...) across
// every registered module. Each argument is handed to every module that
// defines a flag of that name, in registration order; arguments no
// module defines are ignored. No "module." prefix is recognised.
func (c *Config) Parse(args []string) error {
	for _, name := range c.order {
		m := c.modules[name]
		if err := m.Parse(filterOwnArgs(m, args)); err != nil {
			return fmt.Errorf("config: module %q: %w", name, err)
		}
	}
	return nil
}

func filterOwnArgs(m *Module, args []string) []string {
	owned := make([]string, 0, len(args))
	for _, a := range args {
		name := strings.TrimLeft(a, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		if m.Lookup(name) != nil {
			owned = append(owned, a)
		}
	}
	return owned
}

// LoadYAML loads a YAML document of the form {module: {flag: value}} and
// applies every entry via the matching module's flag.Value.Set, mirroring
// the teacher's pkg/config file-driven override path.
func (c *Config) LoadYAML(raw []byte) error {
	doc := map[string]map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: failed to parse YAML: %w", err)
	}
	for modName, values := range doc {
		m, ok := c.modules[modName]
		if !ok {
			return fmt.Errorf("config: unknown module %q in YAML override", modName)
		}
		for key, val := range values {
			f := m.Lookup(key)
			if f == nil {
				return fmt.Errorf("config: unknown flag %q in module %q", key, modName)
			}
			if err := f.Value.Set(fmt.Sprintf("%v", val)); err != nil {
				return fmt.Errorf("config: module %q flag %q: %w", modName, key, err)
			}
		}
	}
	return nil
}

// Print writes every module's current flag values, sorted by module then
// flag name, as a human-readable listing with each flag's default.
func (c *Config) Print() string {
	var b strings.Builder
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	for _, name := range names {
		m := c.modules[name]
		fmt.Fprintf(&b, "[%s] %s\n", name, m.description)
		m.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(&b, "  %-28s %s (default %s)\n", f.Name, f.Value.String(), f.DefValue)
		})
	}
	return b.String()
}
