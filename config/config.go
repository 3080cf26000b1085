/*
Package config loads server and client settings from YAML.

PURPOSE:
  One file configures both binaries: the server reads the server block,
  stagectl reads the client block, and both read the domain overrides.

FILE FORMAT:

	server:
	  port: 8080
	  db: staging.db
	  cors_origins: [http://localhost:5173]
	  janitor_enabled: true
	  janitor_interval: 1h
	client:
	  base_url: http://localhost:8080/api
	  timeout: 15s
	  success_ttl: 3s
	domains:
	  - name: settings
	    delete_style: query
	    load_from: https://cdn.example.com/settings.json

PRECEDENCE:
  Default() < YAML file < environment (STAGE_PORT, STAGE_DB,
  STAGE_BASE_URL) < command-line flags applied by the binaries.

SEE ALSO:
  - cmd/server/main.go, cmd/stagectl: consumers
  - catalog/domains.go: the registry domain overrides apply to
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/staging-engine/catalog"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "STAGE_CONFIG"

// Duration is a time.Duration written as "15s" or "1h" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	DB              string   `yaml:"db"`
	CORSOrigins     []string `yaml:"cors_origins,omitempty"`
	JanitorEnabled  bool     `yaml:"janitor_enabled"`
	JanitorInterval Duration `yaml:"janitor_interval"`
}

// ClientConfig configures engines driven by cmd/stagectl.
type ClientConfig struct {
	BaseURL    string   `yaml:"base_url"`
	Timeout    Duration `yaml:"timeout"`
	SuccessTTL Duration `yaml:"success_ttl"`
}

// DomainConfig overrides how one registered domain is addressed.
type DomainConfig struct {
	Name          string `yaml:"name"`
	CollectionKey string `yaml:"collection_key,omitempty"`
	DeleteStyle   string `yaml:"delete_style,omitempty"`
	LoadFrom      string `yaml:"load_from,omitempty"`
}

// Config is the whole file.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Client  ClientConfig   `yaml:"client"`
	Domains []DomainConfig `yaml:"domains,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			DB:              "staging.db",
			JanitorEnabled:  true,
			JanitorInterval: Duration(time.Hour),
		},
		Client: ClientConfig{
			BaseURL:    "http://localhost:8080/api",
			Timeout:    Duration(15 * time.Second),
			SuccessTTL: Duration(3 * time.Second),
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path falls back to $STAGE_CONFIG; if that is empty too, only
// defaults and environment are used. A named file that does not exist is
// an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("STAGE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STAGE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("STAGE_DB"); v != "" {
		c.Server.DB = v
	}
	if v := os.Getenv("STAGE_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	return nil
}

// Validate checks ranges and domain overrides.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.DB == "" {
		return errors.New("server.db is required")
	}
	if c.Server.JanitorEnabled && c.Server.JanitorInterval <= 0 {
		return errors.New("server.janitor_interval must be positive")
	}
	if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("client.base_url %q is not an absolute URL", c.Client.BaseURL)
	}
	if c.Client.Timeout < 0 {
		return errors.New("client.timeout cannot be negative")
	}

	seen := make(map[string]bool, len(c.Domains))
	for _, dc := range c.Domains {
		if seen[dc.Name] {
			return fmt.Errorf("domain %q configured twice", dc.Name)
		}
		seen[dc.Name] = true
		if _, err := dc.apply(); err != nil {
			return err
		}
	}
	return nil
}

func (dc DomainConfig) apply() (catalog.Domain, error) {
	d, err := catalog.Lookup(dc.Name)
	if err != nil {
		return catalog.Domain{}, fmt.Errorf("domains: %w", err)
	}
	if dc.CollectionKey != "" {
		d.CollectionKey = dc.CollectionKey
	}
	switch catalog.DeleteStyle(dc.DeleteStyle) {
	case "":
	case catalog.DeletePath, catalog.DeleteQuery:
		d.DeleteStyle = catalog.DeleteStyle(dc.DeleteStyle)
	default:
		return catalog.Domain{}, fmt.Errorf("domain %q: delete_style must be %q or %q", dc.Name, catalog.DeletePath, catalog.DeleteQuery)
	}
	if dc.LoadFrom != "" {
		if u, err := url.Parse(dc.LoadFrom); err != nil || u.Scheme == "" {
			return catalog.Domain{}, fmt.Errorf("domain %q: load_from %q is not an absolute URL", dc.Name, dc.LoadFrom)
		}
	}
	return d, nil
}

// ResolveDomains returns every registered domain with overrides applied.
func (c Config) ResolveDomains() ([]catalog.Domain, error) {
	overrides := make(map[string]DomainConfig, len(c.Domains))
	for _, dc := range c.Domains {
		overrides[dc.Name] = dc
	}

	all := catalog.Domains()
	for i, d := range all {
		dc, ok := overrides[d.Name]
		if !ok {
			continue
		}
		applied, err := dc.apply()
		if err != nil {
			return nil, err
		}
		all[i] = applied
	}
	return all, nil
}

// Domain returns one domain with overrides applied and its LoadFrom URL.
func (c Config) Domain(name string) (catalog.Domain, string, error) {
	for _, dc := range c.Domains {
		if dc.Name == name {
			d, err := dc.apply()
			return d, dc.LoadFrom, err
		}
	}
	d, err := catalog.Lookup(name)
	return d, "", err
}
