package querysubmissionhistory

import (
	"fmt"
	"time"

	"crm-intake-workers/internal/common/config"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`

	Index       string `mapstructure:"index"`
	DefaultSize int    `mapstructure:"default_size"`
	MaxSize     int    `mapstructure:"max_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 10,
		Timeout:       30 * time.Second,
		Index:         "submissions",
		DefaultSize:   10,
		MaxSize:       100,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.DefaultSize <= 0 {
		return fmt.Errorf("default_size must be positive")
	}
	if c.MaxSize < c.DefaultSize {
		return fmt.Errorf("max_size must be at least default_size")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()

	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers["query-submission-history"]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = time.Duration(workerCfg.Timeout) * time.Millisecond
			}
		}
		if appConfig.Submission.HistoryIndex != "" {
			cfg.Index = appConfig.Submission.HistoryIndex
		}
	}

	return cfg
}
