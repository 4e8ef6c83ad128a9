// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like CRM_APP_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored when not present
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the first location that has one.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("✅ Loaded .env from: %s\n", path)
				return
			}
		}
	}

	fmt.Printf("⚠️  .env file not found in any location, using system environment variables\n")
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars expands ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from plain environment variables when the
// yaml left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.CRM.AppKey == "" {
		if val := os.Getenv("CRM_APP_KEY"); val != "" {
			cfg.CRM.AppKey = val
		}
	}
	if cfg.CRM.AppSecret == "" {
		if val := os.Getenv("CRM_APP_SECRET"); val != "" {
			cfg.CRM.AppSecret = val
		}
	}
	if cfg.CRM.GatewayURL == "" {
		if val := os.Getenv("CRM_GATEWAY_URL"); val != "" {
			cfg.CRM.GatewayURL = val
		}
	}
	if cfg.CRM.TokenURL == "" {
		if val := os.Getenv("CRM_TOKEN_URL"); val != "" {
			cfg.CRM.TokenURL = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
// The identifier defaults are the production tenant constants; deployments
// override them per environment.
func applyDefaults(cfg *Config) {
	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Elasticsearch URL fallback
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Worker defaults
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	applyCRMDefaults(&cfg.CRM)
	applySubmissionDefaults(&cfg.Submission)

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "configs/registry.json"
	}
}

func applyCRMDefaults(crm *CRMConfig) {
	if crm.GatewayURL == "" {
		crm.GatewayURL = "https://c2.yonyoucloud.com/iuap-api-gateway"
	}
	if crm.TokenURL == "" {
		crm.TokenURL = "https://c2.yonyoucloud.com/iuap-api-auth"
	}
	if crm.Timeout == 0 {
		crm.Timeout = 15000
	}

	org := &crm.Org
	if org.OrgID == "" {
		org.OrgID = "2816765183021312"
	}
	if org.SalesOrgID == "" {
		org.SalesOrgID = org.OrgID
	}
	if org.ApplicantUserID == "" {
		org.ApplicantUserID = "1634633148216115210"
	}
	if org.ApplicantDeptID == "" {
		org.ApplicantDeptID = "1482538237314465798"
	}
	if org.ServiceDeptID == "" {
		org.ServiceDeptID = org.ApplicantDeptID
	}
	if org.CustomerBusType == "" {
		org.CustomerBusType = "1779393122472558598"
	}
	if org.CustomerTransType == "" {
		org.CustomerTransType = "1476790952607089117"
	}
	if org.CustomerIndustry == "" {
		org.CustomerIndustry = "1580721825339932673"
	}

	tasks := &crm.Tasks
	if tasks.InstallTransType == "" {
		tasks.InstallTransType = "1984155894542237704"
	}
	if tasks.InstallBusType == "" {
		tasks.InstallBusType = "1984154580281720833"
	}
	if tasks.ActionTransType == "" {
		tasks.ActionTransType = "1597134252596527112"
	}
	if tasks.ActionBusType == "" {
		tasks.ActionBusType = "1597128428638699526"
	}
	if tasks.QuarterlyTransType == "" {
		tasks.QuarterlyTransType = "1705112066885419012"
	}
	if tasks.FilterTransType == "" {
		tasks.FilterTransType = "1587879680409075716"
	}
	if tasks.FilterActionTrans == "" {
		tasks.FilterActionTrans = "1587879199387942917"
	}
	if tasks.FilterActionBus == "" {
		tasks.FilterActionBus = "1587877885106454533"
	}
	if tasks.FilterBusType == "" {
		tasks.FilterBusType = "1587876974596980738"
	}
	if tasks.RenewalTransType == "" {
		tasks.RenewalTransType = "1984155413509046278"
	}
	if tasks.RenewalBusType == "" {
		tasks.RenewalBusType = "1984154477184679941"
	}
	if tasks.ServiceOwnerID == "" {
		tasks.ServiceOwnerID = "1482551268133044232"
	}
	if tasks.ServiceOwnerName == "" {
		tasks.ServiceOwnerName = "客服003"
	}
	if tasks.MaintenanceOwnerID == "" {
		tasks.MaintenanceOwnerID = "1655434173036888070"
	}
	if tasks.MaintenanceOwner == "" {
		tasks.MaintenanceOwner = "維修幫005"
	}
	if tasks.CashierOwnerID == "" {
		tasks.CashierOwnerID = "1634618416471998473"
	}
	if tasks.CashierOwnerName == "" {
		tasks.CashierOwnerName = "出納008"
	}
}

func applySubmissionDefaults(sub *SubmissionConfig) {
	if sub.StepTimeout == 0 {
		sub.StepTimeout = 15000
	}
	if sub.DefaultPlanType == "" {
		sub.DefaultPlanType = "MAQUA方案"
	}
	if sub.DefaultCurrency == "" {
		sub.DefaultCurrency = "MOP"
	}
	if sub.ContractDefaultYears == 0 {
		sub.ContractDefaultYears = 2
	}
	if sub.ContractExtendedYears == 0 {
		sub.ContractExtendedYears = 3
	}
	if len(sub.ContractKeywords) == 0 {
		sub.ContractKeywords = []string{"HS990", "HM190", "HM290"}
	}
	if sub.SystemSource == "" {
		sub.SystemSource = "intake"
	}
	if sub.SessionTTL == 0 {
		sub.SessionTTL = 1800
	}
	if sub.RawTextTTL == 0 {
		sub.RawTextTTL = 86400
	}
	if sub.HistoryIndex == "" {
		sub.HistoryIndex = "submissions"
	}

	oppt := &sub.Opportunity
	if oppt.TransTypeID == "" {
		oppt.TransTypeID = "1476790952607089117"
	}
	if oppt.SystemCode == "" {
		oppt.SystemCode = "opptOpenApIAdd"
	}
	if oppt.MainBillNum == "" {
		oppt.MainBillNum = "oppt"
	}
	if oppt.StageRentID == "" {
		oppt.StageRentID = "1587859872035110919"
	}
	if oppt.StageBuyID == "" {
		oppt.StageBuyID = "1476791442110679300"
	}
	if oppt.ProcessRentID == "" {
		oppt.ProcessRentID = "1607907035615068175"
	}
	if oppt.ProcessStageRentID == "" {
		oppt.ProcessStageRentID = "1607907035615068223"
	}
	if oppt.ProcessBuyID == "" {
		oppt.ProcessBuyID = "1607907035615068175"
	}
	if oppt.ProcessStageBuyID == "" {
		oppt.ProcessStageBuyID = "1607907035615068211"
	}

	owners := &sub.Owners
	if owners.ServiceID == "" {
		owners.ServiceID = "1482551268133044232"
	}
	if owners.ServiceName == "" {
		owners.ServiceName = "客服003"
	}
	if len(owners.Whitelist) == 0 {
		owners.Whitelist = map[string]OwnerRef{
			"liz":   {ID: "1804041613437042698", Name: "LIZ"},
			"james": {ID: "1634633148216115210", Name: "James"},
			"成":     {ID: "1675717018645954563", Name: "成"},
			"寧":     {ID: "1634633148216115210", Name: "寧"},
		}
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.CRM.GatewayURL == "" {
		return fmt.Errorf("crm.gateway_url is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	// Return default worker config if not found
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
