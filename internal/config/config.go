// Package config loads and validates the root configuration for an
// agentmesh node: server bind addresses, the store backend, per-agent LLM
// defaults, the watchdog, A2A networking, and the skills manifest
// directory. Grounded on the teacher's internal/config package: a root
// Config struct composed of per-concern sub-structs, YAML decoding via
// gopkg.in/yaml.v3, environment variable overrides applied after decode,
// and a single Validate() step run once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the agentmeshd binary and anything
// else that builds a facade.Facade from a file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	A2A      A2AConfig      `yaml:"a2a"`
	Skills   SkillsConfig   `yaml:"skills"`
}

// ServerConfig configures the process's own HTTP surfaces.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// DatabaseConfig selects and configures the durable store backend. Driver
// is one of "memory", "sqlite", "postgres"; DSN is ignored for "memory".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LLMConfig carries the defaults new agents inherit when an organization
// entry leaves its own LLMConfig fields blank. The HTTP client that turns
// this into provider calls is outside this module (spec §1 Non-goals).
type LLMConfig struct {
	DefaultModel   string `yaml:"default_model"`
	DefaultBaseURL string `yaml:"default_base_url"`
}

// WatchdogConfig configures the polling supplement alongside the
// event-driven dispatcher, which needs no configuration of its own.
type WatchdogConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Enabled      bool          `yaml:"enabled"`
}

// A2AConfig configures this node's identity and reachability on the mesh.
type A2AConfig struct {
	NodeID         string `yaml:"node_id"`
	BindAddr       string `yaml:"bind_addr"`
	PublicEndpoint string `yaml:"public_endpoint"`
}

// SkillsConfig points at the on-disk manifest directory internal/skills
// hot-reloads bindings from.
type SkillsConfig struct {
	ManifestDir string `yaml:"manifest_dir"`
}

// Load reads path as YAML into a Config, applies environment overrides,
// fills in defaults, and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Watchdog.PollInterval == 0 {
		cfg.Watchdog.PollInterval = 5 * time.Second
	}
}

// applyEnvOverrides mirrors the teacher's applyEnvOverrides: a fixed set of
// env vars, checked after YAML decode, overriding only when non-empty.
func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("AGENTMESH_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTMESH_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("AGENTMESH_DATABASE_DSN")); value != "" {
		cfg.Database.DSN = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTMESH_NODE_ID")); value != "" {
		cfg.A2A.NodeID = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTMESH_A2A_BIND_ADDR")); value != "" {
		cfg.A2A.BindAddr = value
	}
}

// Validate rejects invalid combinations, per SPEC_FULL.md §A: an A2A bind
// address without a node id, or a SQL store driver with no DSN.
func (c Config) Validate() error {
	var issues []string

	switch c.Database.Driver {
	case "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			issues = append(issues, fmt.Sprintf("database.dsn is required for driver %q", c.Database.Driver))
		}
	default:
		issues = append(issues, fmt.Sprintf("database.driver %q is not one of memory, sqlite, postgres", c.Database.Driver))
	}

	if c.A2A.BindAddr != "" && strings.TrimSpace(c.A2A.NodeID) == "" {
		issues = append(issues, "a2a.node_id is required when a2a.bind_addr is set")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidationError collects every Validate failure at once, so an operator
// fixing a bad config file sees all the problems in one pass instead of
// one per run.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}
