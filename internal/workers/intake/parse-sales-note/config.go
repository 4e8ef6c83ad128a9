package parsesalesnote

import (
	"fmt"
	"time"

	"crm-intake-workers/internal/common/config"
	"crm-intake-workers/internal/intake/normalize"
	"crm-intake-workers/internal/intake/submission"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`

	Builder submission.Settings
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
		Builder:       defaultBuilderSettings(),
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}

func defaultBuilderSettings() submission.Settings {
	return submission.Settings{
		DefaultPlanType:  "MAQUA方案",
		DefaultCurrency:  "MOP",
		DefaultYears:     2,
		ExtendedYears:    3,
		ExtendedKeywords: []string{"HS990", "HM190", "HM290"},
		AddressKeywords:  normalize.DefaultTables().AddressKeywords,
	}
}

// BuilderSettingsFromConfig maps the submission section of the application
// config onto the context builder's derivation settings.
func BuilderSettingsFromConfig(appConfig *config.Config) submission.Settings {
	settings := defaultBuilderSettings()
	if appConfig == nil {
		return settings
	}

	sub := appConfig.Submission
	if sub.DefaultPlanType != "" {
		settings.DefaultPlanType = sub.DefaultPlanType
	}
	if sub.DefaultCurrency != "" {
		settings.DefaultCurrency = sub.DefaultCurrency
	}
	if sub.ContractDefaultYears > 0 {
		settings.DefaultYears = sub.ContractDefaultYears
	}
	if sub.ContractExtendedYears > 0 {
		settings.ExtendedYears = sub.ContractExtendedYears
	}
	if len(sub.ContractKeywords) > 0 {
		settings.ExtendedKeywords = sub.ContractKeywords
	}

	settings.StageRentID = sub.Opportunity.StageRentID
	settings.StageBuyID = sub.Opportunity.StageBuyID
	settings.StageDefaultID = sub.Opportunity.StageDefaultID

	settings.ServiceOwner = submission.OwnerRef{
		ID:   sub.Owners.ServiceID,
		Name: sub.Owners.ServiceName,
	}
	whitelist := make(map[string]submission.OwnerRef, len(sub.Owners.Whitelist))
	for hint, owner := range sub.Owners.Whitelist {
		whitelist[hint] = submission.OwnerRef{ID: owner.ID, Name: owner.Name}
	}
	settings.OwnerWhitelist = whitelist

	return settings
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()

	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers["parse-sales-note"]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = time.Duration(workerCfg.Timeout) * time.Millisecond
			}
		}
		cfg.Builder = BuilderSettingsFromConfig(appConfig)
	}

	return cfg
}
