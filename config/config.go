package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hluisi/pausemon/model"
)

// Defaults.
const (
	DefaultInterval            = 1 * time.Second
	DefaultRingWindow          = 30 * time.Second
	DefaultCollectTimeout      = 5 * time.Second
	DefaultPauseRatio          = 3.0
	DefaultWakeSlack           = 60 * time.Second
	DefaultElevatedThreshold   = 35
	DefaultCriticalThreshold   = 65
	DefaultDeescalateDwell     = 5 * time.Second
	DefaultBootstrapCount      = 10
	DefaultRetentionDays       = 30
	DefaultMaintenanceInterval = 1 * time.Hour
	DefaultClientWriteTimeout  = 200 * time.Millisecond
	DefaultTopPath             = "/usr/bin/top"
)

// Weights are the integer factor weights of the composite score. They are
// configuration, not code, and need not sum to 100; clamping absorbs
// overshoot.
type Weights struct {
	CPU        int `mapstructure:"cpu"`
	State      int `mapstructure:"state"`
	Pageins    int `mapstructure:"pageins"`
	Memory     int `mapstructure:"memory"`
	Compressed int `mapstructure:"compressed"`
	CSW        int `mapstructure:"csw"`
	Syscalls   int `mapstructure:"syscalls"`
	Threads    int `mapstructure:"threads"`
}

// Saturation holds the per-factor ceilings at which a normalized factor
// reaches 1.0. CPU saturates at 100% and state is ordinal, so neither
// appears here.
type Saturation struct {
	PageinRate      float64 `mapstructure:"pagein-rate"`
	MemoryBytes     float64 `mapstructure:"memory-bytes"`
	CompressedBytes float64 `mapstructure:"compressed-bytes"`
	CSWRate         float64 `mapstructure:"csw-rate"`
	SyscallRate     float64 `mapstructure:"syscall-rate"`
	Threads         float64 `mapstructure:"threads"`
}

// CategorySpec is one rogue-selection category descriptor. The fixed set of
// descriptors is iterated uniformly by the selector.
type CategorySpec struct {
	Name      string  `mapstructure:"name"`
	Enabled   bool    `mapstructure:"enabled"`
	TopN      int     `mapstructure:"top-n"`
	Threshold float64 `mapstructure:"threshold"`
}

// Config is the full daemon configuration.
type Config struct {
	DataDir    string `mapstructure:"data-dir"`
	SocketPath string `mapstructure:"socket-path"`
	DBPath     string `mapstructure:"db-path"`

	Interval       time.Duration `mapstructure:"interval"`
	RingWindow     time.Duration `mapstructure:"ring-window"`
	BootstrapCount int           `mapstructure:"bootstrap-count"`

	TopPath        string        `mapstructure:"top-path"`
	CollectTimeout time.Duration `mapstructure:"collect-timeout"`

	PauseRatio float64       `mapstructure:"pause-ratio"`
	WakeSlack  time.Duration `mapstructure:"wake-slack"`

	ElevatedThreshold int           `mapstructure:"elevated-threshold"`
	CriticalThreshold int           `mapstructure:"critical-threshold"`
	DeescalateDwell   time.Duration `mapstructure:"deescalate-dwell"`

	Weights          Weights        `mapstructure:"weights"`
	Saturation       Saturation     `mapstructure:"saturation"`
	Categories       []CategorySpec `mapstructure:"categories"`
	AlwaysFlagStates []string       `mapstructure:"always-flag-states"`

	RetentionDays       int           `mapstructure:"retention-days"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance-interval"`

	ClientWriteTimeout time.Duration `mapstructure:"client-write-timeout"`
}

// DefaultCategories returns the built-in selection descriptors.
func DefaultCategories() []CategorySpec {
	return []CategorySpec{
		{Name: string(model.CategoryCPU), Enabled: true, TopN: 3, Threshold: 50},
		{Name: string(model.CategoryMem), Enabled: true, TopN: 3, Threshold: 1 << 30},
		{Name: string(model.CategoryCompressed), Enabled: true, TopN: 3, Threshold: 256 << 20},
		{Name: string(model.CategoryPageins), Enabled: true, TopN: 3, Threshold: 10},
		{Name: string(model.CategoryCSW), Enabled: true, TopN: 3, Threshold: 2000},
		{Name: string(model.CategorySyscalls), Enabled: true, TopN: 3, Threshold: 5000},
		{Name: string(model.CategoryThreads), Enabled: false, TopN: 3, Threshold: 200},
	}
}

// Load reads configuration from an optional YAML file and PAUSEMON_*
// environment variables, fills defaults, and resolves derived paths.
// It does not validate; call Validate before using the result.
func Load(configPath string) (Config, error) {
	var cfg Config

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	defaultDataDir := filepath.Join(home, ".pausemon")

	v := viper.New()
	v.SetEnvPrefix("PAUSEMON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("data-dir", defaultDataDir)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("ring-window", DefaultRingWindow)
	v.SetDefault("bootstrap-count", DefaultBootstrapCount)
	v.SetDefault("top-path", DefaultTopPath)
	v.SetDefault("collect-timeout", DefaultCollectTimeout)
	v.SetDefault("pause-ratio", DefaultPauseRatio)
	v.SetDefault("wake-slack", DefaultWakeSlack)
	v.SetDefault("elevated-threshold", DefaultElevatedThreshold)
	v.SetDefault("critical-threshold", DefaultCriticalThreshold)
	v.SetDefault("deescalate-dwell", DefaultDeescalateDwell)
	v.SetDefault("weights.cpu", 25)
	v.SetDefault("weights.state", 20)
	v.SetDefault("weights.pageins", 15)
	v.SetDefault("weights.memory", 15)
	v.SetDefault("weights.compressed", 10)
	v.SetDefault("weights.csw", 10)
	v.SetDefault("weights.syscalls", 5)
	v.SetDefault("weights.threads", 0)
	v.SetDefault("saturation.pagein-rate", 100.0)
	v.SetDefault("saturation.memory-bytes", float64(4)*(1<<30))
	v.SetDefault("saturation.compressed-bytes", float64(1<<30))
	v.SetDefault("saturation.csw-rate", 10000.0)
	v.SetDefault("saturation.syscall-rate", 20000.0)
	v.SetDefault("saturation.threads", 500.0)
	v.SetDefault("always-flag-states", []string{string(model.StateStuck), string(model.StateZombie)})
	v.SetDefault("retention-days", DefaultRetentionDays)
	v.SetDefault("maintenance-interval", DefaultMaintenanceInterval)
	v.SetDefault("client-write-timeout", DefaultClientWriteTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "pausemon", "config.yml"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	// Slice defaults cannot come from viper; fill after unmarshal.
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "pausemon.sock")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "pausemon.db")
	}
	return cfg, nil
}

// Validate rejects configurations the daemon must not start with.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive (got %s)", c.Interval)
	}
	if c.RingWindow < c.Interval {
		return fmt.Errorf("ring-window (%s) must be at least one interval (%s)", c.RingWindow, c.Interval)
	}
	if c.CollectTimeout <= 0 {
		return fmt.Errorf("collect-timeout must be positive (got %s)", c.CollectTimeout)
	}
	if c.PauseRatio <= 1 {
		return fmt.Errorf("pause-ratio must be greater than 1 (got %g)", c.PauseRatio)
	}
	if c.ElevatedThreshold <= 0 || c.ElevatedThreshold > 100 {
		return fmt.Errorf("elevated-threshold must be in 1..100 (got %d)", c.ElevatedThreshold)
	}
	if c.CriticalThreshold <= c.ElevatedThreshold || c.CriticalThreshold > 100 {
		return fmt.Errorf("critical-threshold must be in (%d)..100 (got %d)", c.ElevatedThreshold, c.CriticalThreshold)
	}
	if c.DeescalateDwell < 0 {
		return fmt.Errorf("deescalate-dwell cannot be negative (got %s)", c.DeescalateDwell)
	}
	if c.BootstrapCount <= 0 {
		return fmt.Errorf("bootstrap-count must be positive (got %d)", c.BootstrapCount)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("retention-days must be at least 1 (got %d)", c.RetentionDays)
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance-interval must be positive (got %s)", c.MaintenanceInterval)
	}
	if c.ClientWriteTimeout <= 0 {
		return fmt.Errorf("client-write-timeout must be positive (got %s)", c.ClientWriteTimeout)
	}
	if err := validateWeights(c.Weights); err != nil {
		return err
	}
	if err := validateSaturation(c.Saturation); err != nil {
		return err
	}
	if err := validateCategories(c.Categories); err != nil {
		return err
	}
	for _, s := range c.AlwaysFlagStates {
		if model.ParseState(s) == model.StateUnknown {
			return fmt.Errorf("always-flag-states: unknown state %q", s)
		}
	}
	return nil
}

func validateWeights(w Weights) error {
	named := []struct {
		name string
		val  int
	}{
		{"cpu", w.CPU}, {"state", w.State}, {"pageins", w.Pageins},
		{"memory", w.Memory}, {"compressed", w.Compressed},
		{"csw", w.CSW}, {"syscalls", w.Syscalls}, {"threads", w.Threads},
	}
	for _, n := range named {
		if n.val < 0 {
			return fmt.Errorf("weights.%s cannot be negative (got %d)", n.name, n.val)
		}
	}
	return nil
}

func validateSaturation(s Saturation) error {
	named := []struct {
		name string
		val  float64
	}{
		{"pagein-rate", s.PageinRate}, {"memory-bytes", s.MemoryBytes},
		{"compressed-bytes", s.CompressedBytes}, {"csw-rate", s.CSWRate},
		{"syscall-rate", s.SyscallRate}, {"threads", s.Threads},
	}
	for _, n := range named {
		if n.val <= 0 {
			return fmt.Errorf("saturation.%s must be positive (got %g)", n.name, n.val)
		}
	}
	return nil
}

func validateCategories(cats []CategorySpec) error {
	known := map[string]bool{
		string(model.CategoryCPU):        true,
		string(model.CategoryMem):        true,
		string(model.CategoryCompressed): true,
		string(model.CategoryPageins):    true,
		string(model.CategoryCSW):        true,
		string(model.CategorySyscalls):   true,
		string(model.CategoryThreads):    true,
	}
	seen := map[string]bool{}
	for _, c := range cats {
		if !known[c.Name] {
			return fmt.Errorf("categories: unknown category %q", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("categories: duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if c.Enabled && c.TopN < 1 {
			return fmt.Errorf("categories.%s: top-n must be at least 1 when enabled (got %d)", c.Name, c.TopN)
		}
		if c.Threshold < 0 {
			return fmt.Errorf("categories.%s: threshold cannot be negative (got %g)", c.Name, c.Threshold)
		}
	}
	return nil
}
