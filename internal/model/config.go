// Package model defines cutd's configuration, work items, and item keys.
package model

import (
	"fmt"
	"os"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Lease    LeaseConfig    `yaml:"lease"`
	Scan     ScanConfig     `yaml:"scan"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type PathsConfig struct {
	SourceRoot string `yaml:"source_root"`
	TargetRoot string `yaml:"target_root"`
	WorkDir    string `yaml:"work_dir"`
}

type LeaseConfig struct {
	Dir              string `yaml:"dir"`
	TimeoutMin       int    `yaml:"timeout_min"`
	RenewIntervalSec int    `yaml:"renew_interval_sec"`
}

type ScanConfig struct {
	Extensions      []string `yaml:"extensions"`
	TimestampSuffix string   `yaml:"timestamp_suffix"`
	IntervalSec     int      `yaml:"interval_sec"`
	Watch           bool     `yaml:"watch"`
	DebounceSec     int      `yaml:"debounce_sec"`
}

// PipelineConfig describes the external collaborators. Command slices may
// contain the placeholders {source}, {edl}, {dest}, {srt}, {txt}, {log} and
// {repaired}; absent optional inputs are passed as the literal "none".
type PipelineConfig struct {
	Detector          []string `yaml:"detector"`
	Cutter            []string `yaml:"cutter"`
	Probe             []string `yaml:"probe"`
	Repair            []string `yaml:"repair"`
	BlacklistExitCode int      `yaml:"blacklist_exit_code"`
	OOMExitCode       int      `yaml:"oom_exit_code"`
}

type LogConfig struct {
	Path         string `yaml:"path"`
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads a YAML config file and applies defaults. An empty path
// yields a pure-defaults config rooted at the current directory.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yamlv3.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return ApplyDefaults(cfg), nil
}

// ApplyDefaults fills zero-valued fields so an empty config is usable.
func ApplyDefaults(cfg Config) Config {
	if cfg.Paths.SourceRoot == "" {
		cfg.Paths.SourceRoot = "."
	}
	if cfg.Paths.TargetRoot == "" {
		cfg.Paths.TargetRoot = cfg.Paths.SourceRoot + "/out"
	}
	if cfg.Paths.WorkDir == "" {
		cfg.Paths.WorkDir = ".cutd"
	}
	if cfg.Lease.Dir == "" {
		cfg.Lease.Dir = cfg.Paths.WorkDir + "/leases"
	}
	if cfg.Lease.TimeoutMin <= 0 {
		cfg.Lease.TimeoutMin = 60
	}
	if cfg.Lease.RenewIntervalSec <= 0 {
		// ~1:12 against the timeout; a 60min timeout renews every 5min.
		cfg.Lease.RenewIntervalSec = cfg.Lease.TimeoutMin * 60 / 12
	}
	if len(cfg.Scan.Extensions) == 0 {
		cfg.Scan.Extensions = []string{".avi", ".mp4", ".mkv", ".ts", ".mpg"}
	}
	if cfg.Scan.TimestampSuffix == "" {
		cfg.Scan.TimestampSuffix = DefaultTimestampSuffix
	}
	if cfg.Scan.IntervalSec <= 0 {
		cfg.Scan.IntervalSec = 300
	}
	if cfg.Scan.DebounceSec <= 0 {
		cfg.Scan.DebounceSec = 10
	}
	if len(cfg.Pipeline.Detector) == 0 {
		cfg.Pipeline.Detector = []string{"comskip", "{source}"}
	}
	if len(cfg.Pipeline.Cutter) == 0 {
		cfg.Pipeline.Cutter = []string{"cutd", "cut", "{source}", "{edl}", "{dest}", "{srt}", "{txt}", "{log}"}
	}
	if len(cfg.Pipeline.Probe) == 0 {
		cfg.Pipeline.Probe = []string{"ffprobe", "-v", "error", "{source}"}
	}
	if len(cfg.Pipeline.Repair) == 0 {
		cfg.Pipeline.Repair = []string{"ffmpeg", "-y", "-err_detect", "ignore_err", "-i", "{source}", "-c", "copy", "{repaired}"}
	}
	if cfg.Pipeline.BlacklistExitCode == 0 {
		cfg.Pipeline.BlacklistExitCode = 9
	}
	if cfg.Pipeline.OOMExitCode == 0 {
		cfg.Pipeline.OOMExitCode = 137
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = cfg.Paths.WorkDir + "/processing.log"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return cfg
}

// Timeout returns the lease timeout as a duration.
func (c LeaseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMin) * time.Minute
}

// RenewInterval returns the heartbeat interval as a duration.
func (c LeaseConfig) RenewInterval() time.Duration {
	return time.Duration(c.RenewIntervalSec) * time.Second
}
