package submitsalesnote

import (
	"fmt"
	"time"

	"crm-intake-workers/internal/common/config"
	"crm-intake-workers/internal/intake/submission"

	parsesalesnote "crm-intake-workers/internal/workers/intake/parse-sales-note"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`

	StepTimeout        time.Duration `mapstructure:"step_timeout"`
	SkipDuplicateCheck bool          `mapstructure:"skip_duplicate_check"`
	DisableOpportunity bool          `mapstructure:"disable_opportunity"`
	DisableTasks       bool          `mapstructure:"disable_tasks"`

	SessionTTL time.Duration `mapstructure:"session_ttl"`
	RawTextTTL time.Duration `mapstructure:"raw_text_ttl"`

	Builder submission.Settings
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 3,
		Timeout:       120 * time.Second,
		StepTimeout:   15 * time.Second,
		SessionTTL:    30 * time.Minute,
		RawTextTTL:    24 * time.Hour,
		Builder:       parsesalesnote.BuilderSettingsFromConfig(nil),
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("step_timeout must be positive")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()

	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers["submit-sales-note"]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = time.Duration(workerCfg.Timeout) * time.Millisecond
			}
		}

		sub := appConfig.Submission
		cfg.SkipDuplicateCheck = sub.SkipDuplicateCheck
		cfg.DisableOpportunity = sub.DisableOpportunity
		cfg.DisableTasks = sub.DisableTasks
		if sub.StepTimeout > 0 {
			cfg.StepTimeout = config.GetDuration(sub.StepTimeout)
		}
		if sub.SessionTTL > 0 {
			cfg.SessionTTL = time.Duration(sub.SessionTTL) * time.Second
		}
		if sub.RawTextTTL > 0 {
			cfg.RawTextTTL = time.Duration(sub.RawTextTTL) * time.Second
		}

		cfg.Builder = parsesalesnote.BuilderSettingsFromConfig(appConfig)
	}

	return cfg
}
