// internal/config/config.go
//
// This package handles configuration and the .market directory structure.
// Every project that runs market research gets a .market/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// MarketDir is the name of the directory we create in each project
	MarketDir = ".market"

	DefaultResearchBudget    = 50
	DefaultSourcingWorkers   = 3
	DefaultResearchRate      = 2.0
	DefaultResearchEndpoint  = "https://api.tavily.com/extract"
	defaultCacheDir          = ".market/cache"
	defaultVendorProgramPath = ".market/programs/vendor-program.json"
	defaultSWOTProgramPath   = ".market/programs/swot-program.json"
	defaultOutputDir         = ".market/runs"
)

// Environment variables that override the project file.
const (
	EnvResearchBudget      = "MARKET_RESEARCH_BUDGET"
	EnvResearchScopeLimit  = "MARKET_RESEARCH_SCOPE_LIMIT"
	EnvSourcingConcurrency = "MARKET_SOURCING_CONCURRENCY"
	EnvCacheDir            = "MARKET_CACHE_DIR"
	EnvVendorProgramPath   = "MARKET_VENDOR_PROGRAM_PATH"
	EnvSWOTProgramPath     = "MARKET_SWOT_PROGRAM_PATH"
	EnvAgentCommand        = "MARKET_AGENT_COMMAND"
	EnvResearchEndpoint    = "MARKET_RESEARCH_ENDPOINT"
	EnvResearchAPIKey      = "MARKET_RESEARCH_API_KEY"
)

const defaultProjectConfigYAML = `# market-lattice project configuration
version: 1

research:
  # Total extract calls allowed for one process.
  budget: 50
  # Per-stage ceiling. 0 leaves only the process-wide limit.
  scope_limit: 0
  # Leave empty to fetch pages directly instead of using an extract API.
  endpoint: ""
  rate_per_second: 2

sourcing:
  # Deep-dive (SWOT) workers.
  concurrency: 3

agent:
  # Command that starts the MCP analysis server, e.g. "python -m market_agents.mcp".
  command: ""

cache:
  dir: .market/cache
  vendor_program: .market/programs/vendor-program.json
  swot_program: .market/programs/swot-program.json

output:
  dir: .market/runs
`

// ResearchConfig covers the budgeted extract operation.
type ResearchConfig struct {
	Budget        int     `yaml:"budget"`
	ScopeLimit    int     `yaml:"scope_limit"`
	Endpoint      string  `yaml:"endpoint,omitempty"`
	APIKey        string  `yaml:"api_key,omitempty"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// SourcingConfig covers the deep-dive batch.
type SourcingConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// AgentConfig describes how the analysis server is launched.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Env     []string `yaml:"env,omitempty"`
}

// CacheConfig holds artifact cache locations.
type CacheConfig struct {
	Dir           string `yaml:"dir"`
	VendorProgram string `yaml:"vendor_program"`
	SWOTProgram   string `yaml:"swot_program"`
}

// OutputConfig holds report locations.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// ProjectConfig models .market/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Research ResearchConfig `yaml:"research"`
	Sourcing SourcingConfig `yaml:"sourcing"`
	Agent    AgentConfig    `yaml:"agent"`
	Cache    CacheConfig    `yaml:"cache"`
	Output   OutputConfig   `yaml:"output"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory where the user ran the CLI from
	ProjectDir string

	// MarketProjectDir is ProjectDir/.market
	MarketProjectDir string

	Project ProjectConfig
}

// InitMarketDir creates the .market directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .market/
// ├── cache/     <- per-vendor deep-dive results
// ├── programs/  <- compiled agent programs
// ├── logs/      <- structured process log
// └── runs/      <- one directory of reports per pipeline run
func InitMarketDir(projectDir string) error {
	marketDir := filepath.Join(projectDir, MarketDir)

	dirs := []string{
		filepath.Join(marketDir, "cache"),
		filepath.Join(marketDir, "programs"),
		filepath.Join(marketDir, "logs"),
		filepath.Join(marketDir, "runs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(marketDir, "config.yaml"))
}

// NewConfig loads .market/config.yaml (if present) and applies environment
// overrides on top of it.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		MarketProjectDir: filepath.Join(projectDir, MarketDir),
		Project:          defaultProjectConfig(),
	}

	if err := cfg.loadProjectConfig(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.MarketProjectDir, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.MarketProjectDir, "config.yaml")
}

// CacheDir returns the artifact cache root.
func (c *Config) CacheDir() string {
	return c.Project.Cache.Dir
}

// ResultCacheDir returns where per-vendor deep-dive results are stored.
func (c *Config) ResultCacheDir() string {
	return filepath.Join(c.Project.Cache.Dir, "swot")
}

// OutputDir returns the root under which run directories are created.
func (c *Config) OutputDir() string {
	return c.Project.Output.Dir
}

// RunDir returns the report directory for one run.
func (c *Config) RunDir(runID string) string {
	return filepath.Join(c.Project.Output.Dir, runID)
}

// ResearchBudget returns the process-wide extract limit.
func (c *Config) ResearchBudget() int {
	return c.Project.Research.Budget
}

// ScopeLimit returns the per-stage research ceiling; 0 means none.
func (c *Config) ScopeLimit() int {
	return c.Project.Research.ScopeLimit
}

// Concurrency returns the deep-dive worker count.
func (c *Config) Concurrency() int {
	return c.Project.Sourcing.Concurrency
}

// AgentCommand returns the MCP server launch command.
func (c *Config) AgentCommand() string {
	return c.Project.Agent.Command
}

func (c *Config) loadProjectConfig(lookup func(string) (string, bool)) error {
	path := c.ProjectConfigPath()
	parsed := defaultProjectConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		parsed = ProjectConfig{}
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed.applyDefaults()
	if err := parsed.applyEnv(lookup); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Research.Budget == 0 {
		pc.Research.Budget = DefaultResearchBudget
	}
	if pc.Research.RatePerSecond == 0 {
		pc.Research.RatePerSecond = DefaultResearchRate
	}
	if pc.Sourcing.Concurrency == 0 {
		pc.Sourcing.Concurrency = DefaultSourcingWorkers
	}
	if pc.Cache.Dir == "" {
		pc.Cache.Dir = defaultCacheDir
	}
	if pc.Cache.VendorProgram == "" {
		pc.Cache.VendorProgram = defaultVendorProgramPath
	}
	if pc.Cache.SWOTProgram == "" {
		pc.Cache.SWOTProgram = defaultSWOTProgramPath
	}
	if pc.Output.Dir == "" {
		pc.Output.Dir = defaultOutputDir
	}
}

func (pc *ProjectConfig) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	ints := []struct {
		key string
		dst *int
	}{
		{EnvResearchBudget, &pc.Research.Budget},
		{EnvResearchScopeLimit, &pc.Research.ScopeLimit},
		{EnvSourcingConcurrency, &pc.Sourcing.Concurrency},
	}
	for _, entry := range ints {
		raw, ok := lookup(entry.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", entry.key, raw)
		}
		*entry.dst = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{EnvCacheDir, &pc.Cache.Dir},
		{EnvVendorProgramPath, &pc.Cache.VendorProgram},
		{EnvSWOTProgramPath, &pc.Cache.SWOTProgram},
		{EnvAgentCommand, &pc.Agent.Command},
		{EnvResearchEndpoint, &pc.Research.Endpoint},
		{EnvResearchAPIKey, &pc.Research.APIKey},
	}
	for _, entry := range strs {
		if raw, ok := lookup(entry.key); ok && strings.TrimSpace(raw) != "" {
			*entry.dst = strings.TrimSpace(raw)
		}
	}
	return nil
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Research.Endpoint = strings.TrimSpace(pc.Research.Endpoint)
	pc.Agent.Command = strings.TrimSpace(pc.Agent.Command)
	pc.Cache.Dir = resolvePath(base, pc.Cache.Dir)
	pc.Cache.VendorProgram = resolvePath(base, pc.Cache.VendorProgram)
	pc.Cache.SWOTProgram = resolvePath(base, pc.Cache.SWOTProgram)
	pc.Output.Dir = resolvePath(base, pc.Output.Dir)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Research.Budget < 0 {
		return fmt.Errorf("research.budget must be >= 0")
	}
	if pc.Research.ScopeLimit < 0 {
		return fmt.Errorf("research.scope_limit must be >= 0")
	}
	if pc.Research.RatePerSecond < 0 {
		return fmt.Errorf("research.rate_per_second must be >= 0")
	}
	if pc.Sourcing.Concurrency < 1 {
		return fmt.Errorf("sourcing.concurrency must be >= 1")
	}
	if pc.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

// Save persists the current project config back to .market/config.yaml.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.MarketProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure market dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
