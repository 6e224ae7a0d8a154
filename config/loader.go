// Package config loads the sectioned job and datasource config files and
// checks raw job sections out into runnable core.Job records.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	ini "gopkg.in/ini.v1"

	"github.com/netresearch/datamon/core"
)

// Sections is the parsed view of one or more config files:
// section name → (key → raw string value). Keys are case-sensitive.
type Sections map[string]map[string]string

// reserved reports whether a section holds shared options instead of a job:
// DEFAULT cascades into every job section, underscore sections are
// templates.
func reserved(name string) bool {
	return name == ini.DefaultSection || strings.HasPrefix(name, "_")
}

// LoadFile parses one config file. Options of the DEFAULT section cascade
// into every other section; duplicate keys within a file follow last-wins.
func LoadFile(path string) (Sections, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config file %q: %w", path, err)
	}

	out := Sections{}
	cascade := cfg.Section(ini.DefaultSection).KeysHash()
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		kv := make(map[string]string, len(cascade)+len(sec.Keys()))
		for k, v := range cascade {
			kv[k] = v
		}
		for k, v := range sec.KeysHash() {
			kv[k] = v
		}
		out[name] = kv
	}
	return out, nil
}

// Load parses several config files into one view. Call DetectConflict first;
// Load itself does not guard against a section defined twice.
func Load(paths []string) (Sections, error) {
	out := Sections{}
	for _, path := range paths {
		sections, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for name, kv := range sections {
			out[name] = kv
		}
	}
	return out, nil
}

// DetectConflict returns an error naming the first job section defined in
// two different files. Reserved sections may repeat freely.
func DetectConflict(paths []string) error {
	sets := make([]map[string]struct{}, len(paths))
	for i, path := range paths {
		sections, err := LoadFile(path)
		if err != nil {
			return err
		}
		set := make(map[string]struct{}, len(sections))
		for name := range sections {
			if !reserved(name) {
				set[name] = struct{}{}
			}
		}
		sets[i] = set
	}

	for i := range paths {
		for j := i + 1; j < len(paths); j++ {
			for name := range sets[i] {
				if _, dup := sets[j][name]; dup {
					return &core.ConflictError{Name: name, File1: paths[i], File2: paths[j]}
				}
			}
		}
	}
	return nil
}

// JobNames lists every runnable section in deterministic order.
func (s Sections) JobNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		if !reserved(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LoadDatasources parses the datasource config file into named connection
// configs. Any malformed section is fatal; jobs cannot run against a
// datasource whose parameters did not validate.
func LoadDatasources(path string) (map[string]*core.DatasourceConfig, error) {
	sections, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	validate := validator.New()
	out := make(map[string]*core.DatasourceConfig, len(sections))
	for name, kv := range sections {
		ds := &core.DatasourceConfig{}
		if err := defaults.Set(ds); err != nil {
			return nil, err
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           ds,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(kv); err != nil {
			return nil, core.ConfigErrorf("db-config error in section %q: %v", name, err)
		}
		ds.Name = name
		if err := validate.Struct(ds); err != nil {
			return nil, core.ConfigErrorf("db-config error in section %q: %v", name, err)
		}
		out[name] = ds
	}
	return out, nil
}
