// Package config loads and validates the logsink YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/Geun-Oh/logsink/internal/store"
)

// DefaultRetentionSeconds keeps documents for one week when the config does
// not say otherwise.
const DefaultRetentionSeconds = 7 * 24 * 60 * 60

// IndexKey is one (field, direction) pair of an index definition.
type IndexKey struct {
	Field     string `yaml:"field"`
	Direction int    `yaml:"direction"`
}

// Index is an ordered index definition applied once at first use.
type Index struct {
	Name   string     `yaml:"name"`
	Unique bool       `yaml:"unique"`
	Keys   []IndexKey `yaml:"keys"`
}

// Mongo configures the database side of the sink.
type Mongo struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Database   string  `yaml:"database"`
	Collection string  `yaml:"collection"`
	Indexes    []Index `yaml:"indexes"`

	// Retention is the age in seconds before a document becomes eligible
	// for deletion. 0 disables cleanup. A pointer so an absent key can
	// default to one week while an explicit 0 stays 0.
	Retention *int `yaml:"retention"`

	CollectFields bool `yaml:"collect_fields"`
}

// Source configures where records come from.
type Source struct {
	Type    string   `yaml:"type"` // stdin (default), file, exec, docker
	Path    string   `yaml:"path"`
	Follow  bool     `yaml:"follow"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Grok    string   `yaml:"grok"`
}

// Config is the root configuration.
type Config struct {
	Mongo  Mongo  `yaml:"mongo"`
	Source Source `yaml:"source"`

	// Verbose is a tri-state: unset defers to the terminal check at startup.
	Verbose *bool `yaml:"verbose"`
}

// Default returns a configuration with all defaults applied and no
// database target set. Callers fill in Database/Collection (e.g. from CLI
// flags) and then Validate.
func Default() *Config {
	retention := DefaultRetentionSeconds
	return &Config{
		Mongo: Mongo{
			Host:      "localhost",
			Port:      27017,
			Retention: &retention,
		},
		Source: Source{Type: "stdin"},
	}
}

// Load reads and unmarshals the configuration file located at the given
// path and applies defaults. It does not validate: callers layer their own
// overrides (CLI flags) on top first, then call Validate once.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mongo.Host == "" {
		c.Mongo.Host = "localhost"
	}
	if c.Mongo.Port == 0 {
		c.Mongo.Port = 27017
	}
	if c.Mongo.Retention == nil {
		retention := DefaultRetentionSeconds
		c.Mongo.Retention = &retention
	}
	if c.Source.Type == "" {
		c.Source.Type = "stdin"
	}
	for i := range c.Mongo.Indexes {
		for j := range c.Mongo.Indexes[i].Keys {
			if c.Mongo.Indexes[i].Keys[j].Direction == 0 {
				c.Mongo.Indexes[i].Keys[j].Direction = 1
			}
		}
	}
}

// Validate checks the configuration for completeness.
func (c *Config) Validate() error {
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if c.Mongo.Collection == "" {
		return fmt.Errorf("mongo.collection is required")
	}
	if c.Mongo.Retention != nil && *c.Mongo.Retention < 0 {
		return fmt.Errorf("mongo.retention must not be negative")
	}

	for _, idx := range c.Mongo.Indexes {
		if len(idx.Keys) == 0 {
			return fmt.Errorf("index %q has no keys", idx.Name)
		}
		for _, k := range idx.Keys {
			if k.Field == "" {
				return fmt.Errorf("index %q has a key without a field", idx.Name)
			}
			if k.Direction != 1 && k.Direction != -1 {
				return fmt.Errorf("index %q field %s: direction must be 1 or -1", idx.Name, k.Field)
			}
		}
	}

	switch c.Source.Type {
	case "stdin":
	case "file":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required when source type is file")
		}
	case "exec":
		if c.Source.Command == "" {
			return fmt.Errorf("source.command is required when source type is exec")
		}
	case "docker":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path (container name) is required when source type is docker")
		}
	default:
		return fmt.Errorf("unsupported source type: %s", c.Source.Type)
	}

	return nil
}

// RetentionDuration returns the retention window as a duration.
func (c *Config) RetentionDuration() time.Duration {
	if c.Mongo.Retention == nil {
		return DefaultRetentionSeconds * time.Second
	}
	return time.Duration(*c.Mongo.Retention) * time.Second
}

// StoreOptions maps the mongo section onto store options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Host:     c.Mongo.Host,
		Port:     c.Mongo.Port,
		URI:      c.Mongo.URI,
		Username: c.Mongo.Username,
		Password: c.Mongo.Password,
		Database: c.Mongo.Database,
	}
}

// IndexSpecs maps the configured index definitions onto store specs.
func (c *Config) IndexSpecs() []store.IndexSpec {
	if len(c.Mongo.Indexes) == 0 {
		return nil
	}
	specs := make([]store.IndexSpec, 0, len(c.Mongo.Indexes))
	for _, idx := range c.Mongo.Indexes {
		spec := store.IndexSpec{Name: idx.Name, Unique: idx.Unique}
		for _, k := range idx.Keys {
			spec.Keys = append(spec.Keys, store.IndexKey{Field: k.Field, Direction: k.Direction})
		}
		specs = append(specs, spec)
	}
	return specs
}
