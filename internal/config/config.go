// Package config provides YAML configuration loading and validation for
// nyx: a configuration file produces the set of validated watch.Watch
// records the supervision core requires (spec.md §1's config-parsing
// external-collaborator contract, made concrete).
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nyxproc/nyx/internal/watch"
)

// Config is the top-level nyx configuration file structure.
type Config struct {
	// RuntimeDir is where PID files and the control socket live.
	// When omitted, applyDefaults uses the value of NYX_DIR if it is set
	// in the environment, and "/var/run/nyx" otherwise.
	RuntimeDir string `yaml:"runtime_dir"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// PollInterval is the poll loop tick interval in seconds. Defaults to
	// 1 (spec.md §4.2's stated minimum) when omitted or below the
	// minimum.
	PollInterval int `yaml:"poll_interval"`

	// ControlAddr is the loopback address the control HTTP API binds to
	// (internal/control, §4.6). Defaults to "127.0.0.1:8191" when
	// omitted.
	ControlAddr string `yaml:"control_addr"`

	// Watches is the set of supervised services.
	Watches []WatchConfig `yaml:"watches"`
}

// WatchConfig is the YAML shape of one watch.Watch record. It mirrors
// watch.Watch field-for-field (spec.md §3) but keeps YAML concerns
// (tags, optional zero-defaulting) out of the domain type.
type WatchConfig struct {
	Name string   `yaml:"name"`
	Start []string `yaml:"start"`
	Stop  []string `yaml:"stop,omitempty"`

	Dir string `yaml:"dir,omitempty"`
	UID string `yaml:"uid,omitempty"`
	GID string `yaml:"gid,omitempty"`

	PidFile   string `yaml:"pid_file,omitempty"`
	LogFile   string `yaml:"log_file,omitempty"`
	ErrorFile string `yaml:"error_file,omitempty"`

	Env map[string]string `yaml:"env,omitempty"`

	HTTPCheck       string `yaml:"http_check,omitempty"`
	HTTPCheckPort   int    `yaml:"http_check_port,omitempty"`
	HTTPCheckMethod string `yaml:"http_check_method,omitempty"`
	PortCheck       int    `yaml:"port_check,omitempty"`

	StopTimeout   int    `yaml:"stop_timeout,omitempty"`
	MaxCPU        uint64 `yaml:"max_cpu,omitempty"`
	MaxMemory     uint64 `yaml:"max_memory,omitempty"`
	StartupDelay  int    `yaml:"startup_delay,omitempty"`
	RestartWindow int    `yaml:"restart_window,omitempty"`
	RestartLimit  int    `yaml:"restart_limit,omitempty"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// DefaultRuntimeDir, DefaultControlAddr, DefaultPollInterval are applied
// by applyDefaults when the corresponding YAML field is omitted.
const (
	DefaultRuntimeDir    = "/var/run/nyx"
	DefaultControlAddr   = "127.0.0.1:8191"
	DefaultPollInterval  = 1
)

// LoadConfig reads the YAML file at path, unmarshals it into Config,
// applies defaults, and validates all required fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RuntimeDir == "" {
		cfg.RuntimeDir = os.Getenv("NYX_DIR")
	}
	if cfg.RuntimeDir == "" {
		cfg.RuntimeDir = DefaultRuntimeDir
	}
	if cfg.ControlAddr == "" {
		cfg.ControlAddr = DefaultControlAddr
	}
	if cfg.PollInterval < 1 {
		cfg.PollInterval = DefaultPollInterval
	}
	for i := range cfg.Watches {
		if cfg.Watches[i].RestartWindow == 0 {
			cfg.Watches[i].RestartWindow = watch.DefaultRestartWindow
		}
		if cfg.Watches[i].RestartLimit == 0 {
			cfg.Watches[i].RestartLimit = watch.DefaultRestartLimit
		}
	}
}

func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	seen := make(map[string]bool, len(cfg.Watches))
	for i, w := range cfg.Watches {
		prefix := fmt.Sprintf("watches[%d]", i)
		if w.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", prefix))
		} else if seen[w.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate watch name %q", prefix, w.Name))
		} else {
			seen[w.Name] = true
		}
		if len(w.Start) == 0 || w.Start[0] == "" {
			errs = append(errs, fmt.Errorf("%s (%s): start must be a non-empty argv with a non-empty start[0]", prefix, w.Name))
		}
		if w.StopTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s (%s): stop_timeout must not be negative", prefix, w.Name))
		}
		if w.RestartWindow < 0 || w.RestartLimit < 0 {
			errs = append(errs, fmt.Errorf("%s (%s): restart_window and restart_limit must not be negative", prefix, w.Name))
		}
	}

	return errors.Join(errs...)
}

// ToWatches converts the validated Config's WatchConfig entries into
// watch.Watch domain records, assigning each a stable ID (its index plus
// one — stable for the lifetime of one generation, as spec.md §3
// requires, but free to change across a reload that adds/removes
// watches, also as specified).
func ToWatches(cfg *Config) map[int32]watch.Watch {
	out := make(map[int32]watch.Watch, len(cfg.Watches))
	for i, wc := range cfg.Watches {
		id := int32(i + 1)
		out[id] = watch.Watch{
			ID:              id,
			Name:            wc.Name,
			Start:           wc.Start,
			Stop:            wc.Stop,
			Dir:             wc.Dir,
			UID:             wc.UID,
			GID:             wc.GID,
			PidFile:         wc.PidFile,
			LogFile:         wc.LogFile,
			ErrorFile:       wc.ErrorFile,
			Env:             wc.Env,
			HTTPCheck:       wc.HTTPCheck,
			HTTPCheckPort:   wc.HTTPCheckPort,
			HTTPCheckMethod: wc.HTTPCheckMethod,
			PortCheck:       wc.PortCheck,
			StopTimeout:     wc.StopTimeout,
			MaxCPU:          wc.MaxCPU,
			MaxMemory:       wc.MaxMemory,
			StartupDelay:    wc.StartupDelay,
			RestartWindow:   wc.RestartWindow,
			RestartLimit:    wc.RestartLimit,
		}
	}
	return out
}

// ByName indexes ToWatches' output by watch name, the key the
// supervisor's Machine map and the poll loop use.
func ByName(cfg *Config) map[string]watch.Watch {
	out := make(map[string]watch.Watch, len(cfg.Watches))
	for _, w := range ToWatches(cfg) {
		out[w.Name] = w
	}
	return out
}
