// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	CRM           CRMConfig               `mapstructure:"crm"`
	Submission    SubmissionConfig        `mapstructure:"submission"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Registry      RegistryConfig          `mapstructure:"registry"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- CRM Gateway Configuration ---

// CRMConfig holds connection and tenant settings for the CRM open-API
// gateway. Endpoint paths are fixed production routes; only the two base
// URLs and the tenant identifiers vary per deployment.
type CRMConfig struct {
	GatewayURL string        `mapstructure:"gateway_url"`
	TokenURL   string        `mapstructure:"token_url"`
	AppKey     string        `mapstructure:"app_key"`
	AppSecret  string        `mapstructure:"app_secret"`
	Timeout    int           `mapstructure:"timeout"` // milliseconds
	Org        CRMOrgConfig  `mapstructure:"org"`
	Tasks      CRMTaskConfig `mapstructure:"tasks"`
}

// CRMOrgConfig holds the org/party identifiers the gateway requires on
// every write. These are tenant constants, not per-submission data.
type CRMOrgConfig struct {
	OrgID             string `mapstructure:"org_id"`
	SalesOrgID        string `mapstructure:"sales_org_id"`
	ApplicantUserID   string `mapstructure:"applicant_user_id"`
	ApplicantDeptID   string `mapstructure:"applicant_dept_id"`
	ServiceDeptID     string `mapstructure:"service_dept_id"`
	CustomerBusType   string `mapstructure:"customer_bustype_id"`
	CustomerTransType string `mapstructure:"customer_trans_type_id"`
	CustomerIndustry  string `mapstructure:"customer_industry_id"`
}

// CRMTaskConfig holds the transaction-type and business-type identifiers for
// the follow-up task suite, plus the executor roster.
type CRMTaskConfig struct {
	InstallTransType   string `mapstructure:"install_trans_type"`
	InstallBusType     string `mapstructure:"install_bustype"`
	ActionTransType    string `mapstructure:"action_trans_type"`
	ActionBusType      string `mapstructure:"action_bustype"`
	QuarterlyTransType string `mapstructure:"quarterly_trans_type"`
	FilterTransType    string `mapstructure:"filter_trans_type"`
	FilterActionTrans  string `mapstructure:"filter_action_trans_type"`
	FilterActionBus    string `mapstructure:"filter_action_bustype"`
	FilterBusType      string `mapstructure:"filter_bustype"`
	RenewalTransType   string `mapstructure:"renewal_trans_type"`
	RenewalBusType     string `mapstructure:"renewal_bustype"`

	ServiceOwnerID     string `mapstructure:"service_owner_id"`
	ServiceOwnerName   string `mapstructure:"service_owner_name"`
	MaintenanceOwnerID string `mapstructure:"maintenance_owner_id"`
	MaintenanceOwner   string `mapstructure:"maintenance_owner_name"`
	CashierOwnerID     string `mapstructure:"cashier_owner_id"`
	CashierOwnerName   string `mapstructure:"cashier_owner_name"`
}

// --- Submission Pipeline Configuration ---

// SubmissionConfig holds the orchestration flags and the immutable derivation
// tables for the submission pipeline. The skip/disable flags default to off
// so a zero-value config runs the full pipeline.
type SubmissionConfig struct {
	SkipDuplicateCheck bool `mapstructure:"skip_duplicate_check"`
	SkipAudit          bool `mapstructure:"skip_audit"`
	DisableOpportunity bool `mapstructure:"disable_opportunity"`
	DisableTasks       bool `mapstructure:"disable_tasks"`

	StepTimeout int `mapstructure:"step_timeout"` // milliseconds

	DefaultPlanType       string   `mapstructure:"default_plan_type"`
	DefaultCurrency       string   `mapstructure:"default_currency"`
	ContractDefaultYears  int      `mapstructure:"contract_default_years"`
	ContractExtendedYears int      `mapstructure:"contract_extended_years"`
	ContractKeywords      []string `mapstructure:"contract_keywords"`

	SystemSource string `mapstructure:"system_source"`

	Opportunity OpportunityConfig `mapstructure:"opportunity"`
	Owners      OwnerConfig       `mapstructure:"owners"`

	SessionTTL   int    `mapstructure:"session_ttl"`  // seconds
	RawTextTTL   int    `mapstructure:"raw_text_ttl"` // seconds
	HistoryIndex string `mapstructure:"history_index"`
}

// OpportunityConfig holds the opportunity record constants: transaction type,
// source, stage and process identifiers per usage kind.
type OpportunityConfig struct {
	TransTypeID string `mapstructure:"trans_type_id"`
	Source      string `mapstructure:"source"`
	SystemCode  string `mapstructure:"system_code"`
	MainBillNum string `mapstructure:"main_bill_num"`

	StageRentID        string `mapstructure:"stage_rent_id"`
	StageBuyID         string `mapstructure:"stage_buy_id"`
	StageDefaultID     string `mapstructure:"stage_default_id"`
	ProcessRentID      string `mapstructure:"process_rent_id"`
	ProcessStageRentID string `mapstructure:"process_stage_rent_id"`
	ProcessBuyID       string `mapstructure:"process_buy_id"`
	ProcessStageBuyID  string `mapstructure:"process_stage_buy_id"`
}

// OwnerRef is one entry of the sales owner whitelist.
type OwnerRef struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// OwnerConfig maps owner hints from the note text to CRM user identities.
// Hints outside the whitelist fall back to the service owner.
type OwnerConfig struct {
	ServiceID   string              `mapstructure:"service_id"`
	ServiceName string              `mapstructure:"service_name"`
	Whitelist   map[string]OwnerRef `mapstructure:"whitelist"`
}

// NotificationConfig holds settings for submission outcome notifications.
type NotificationConfig struct {
	Email struct {
		Enabled    bool     `mapstructure:"enabled"`
		FromEmail  string   `mapstructure:"from_email"`
		Recipients []string `mapstructure:"recipients"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled     bool   `mapstructure:"enabled"`
		SMSSenderID string `mapstructure:"sms_sender_id"`
		PhoneNumber string `mapstructure:"phone_number"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// RegistryConfig holds the activity registry location.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}
