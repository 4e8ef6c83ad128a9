// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crm-intake-workers/internal/common/auth"
	"crm-intake-workers/internal/common/camunda"
	"crm-intake-workers/internal/common/config"
	"crm-intake-workers/internal/common/crm"
	"crm-intake-workers/internal/common/database"
	httpclient "crm-intake-workers/internal/common/http"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/common/observability"
	"crm-intake-workers/internal/intake/catalog"
	"crm-intake-workers/internal/intake/history"
	"crm-intake-workers/internal/intake/notify"
	"crm-intake-workers/internal/intake/session"
	"crm-intake-workers/pkg/registry"

	createfollowuptasks "crm-intake-workers/internal/workers/crm/create-followup-tasks"
	parsesalesnote "crm-intake-workers/internal/workers/intake/parse-sales-note"
	querysubmissionhistory "crm-intake-workers/internal/workers/intake/query-submission-history"
	submitsalesnote "crm-intake-workers/internal/workers/intake/submit-sales-note"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("registry load failed", zap.String("path", cfg.Registry.Path), zap.Error(err))
	}
	if err := reg.Validate(); err != nil {
		zapLog.Fatal("registry invalid", zap.Error(err))
	}
	zapLog.Info("Activity registry loaded",
		zap.Int("activities", len(reg.Activities)),
		zap.Strings("taskTypes", reg.TaskTypes()),
	)

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress)
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init CRM gateway stack ---
	gatewayHTTP := httpclient.NewClient(config.GetDuration(cfg.CRM.Timeout))
	tokens := auth.NewTokenService(cfg.CRM.TokenURL, cfg.CRM.AppKey, cfg.CRM.AppSecret, gatewayHTTP)
	crmClient := crm.NewClient(cfg.CRM.GatewayURL, tokens, gatewayHTTP)
	crmService := crm.NewService(crmClient, catalog.Default(), crmSettingsFromConfig(cfg), zapLog)

	// --- Init intake infrastructure ---
	sessions := session.NewStore(redisClient.GetClient())
	archiveStore := history.NewPostgresStore(pg.DB)
	searchIndex := history.NewSearchIndex(esClient.Client, cfg.Submission.HistoryIndex)
	archiver := history.NewArchiver(archiveStore, searchIndex, zapLog)

	notifier, err := notify.NewNotifier(ctx, cfg.Notifications, zapLog)
	if err != nil {
		zapLog.Warn("notifier unavailable, submission outcomes will not be sent", zap.Error(err))
		notifier = nil
	}

	zapLog.Info("All external service clients initialized")

	// --- Register Workers ---
	var workers []*camunda.Worker

	if workerCfg := cfg.Workers["parse-sales-note"]; workerCfg.Enabled {
		handler, err := parsesalesnote.NewHandler(parsesalesnote.HandlerOptions{
			AppConfig: cfg,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create parse-sales-note handler", zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      parsesalesnote.TaskType,
			MaxJobsActive: workerCfg.MaxJobsActive,
			Timeout:       config.GetDuration(workerCfg.Timeout),
		}, handler.Handle, zapLog))
	}

	if workerCfg := cfg.Workers["submit-sales-note"]; workerCfg.Enabled {
		handler, err := submitsalesnote.NewHandler(submitsalesnote.HandlerOptions{
			AppConfig: cfg,
			Logger:    log,
			Dependencies: submitsalesnote.ServiceDependencies{
				Logger:        log,
				Zap:           zapLog,
				Backend:       crmService,
				Sessions:      sessions,
				Archiver:      archiver,
				Notifier:      notifier,
				Observability: obs,
			},
		})
		if err != nil {
			zapLog.Fatal("failed to create submit-sales-note handler", zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      submitsalesnote.TaskType,
			MaxJobsActive: workerCfg.MaxJobsActive,
			Timeout:       config.GetDuration(workerCfg.Timeout),
		}, handler.Handle, zapLog))
	}

	if workerCfg := cfg.Workers["query-submission-history"]; workerCfg.Enabled {
		handler, err := querysubmissionhistory.NewHandler(querysubmissionhistory.HandlerOptions{
			AppConfig: cfg,
			Logger:    log,
			Dependencies: querysubmissionhistory.ServiceDependencies{
				Logger: log,
				Search: searchIndex,
			},
		})
		if err != nil {
			zapLog.Fatal("failed to create query-submission-history handler", zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      querysubmissionhistory.TaskType,
			MaxJobsActive: workerCfg.MaxJobsActive,
			Timeout:       config.GetDuration(workerCfg.Timeout),
		}, handler.Handle, zapLog))
	}

	if workerCfg := cfg.Workers["create-followup-tasks"]; workerCfg.Enabled {
		handler, err := createfollowuptasks.NewHandler(createfollowuptasks.HandlerOptions{
			AppConfig: cfg,
			Logger:    log,
			Dependencies: createfollowuptasks.ServiceDependencies{
				Logger:   log,
				Tasks:    crmService,
				RawTexts: sessions,
			},
		})
		if err != nil {
			zapLog.Fatal("failed to create create-followup-tasks handler", zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      createfollowuptasks.TaskType,
			MaxJobsActive: workerCfg.MaxJobsActive,
			Timeout:       config.GetDuration(workerCfg.Timeout),
		}, handler.Handle, zapLog))
	}

	for _, w := range workers {
		if reg.FindByTaskType(w.TaskType()) == nil {
			zapLog.Warn("worker task type not in activity registry", zap.String("taskType", w.TaskType()))
		}
	}

	zapLog.Info("All workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			status := "ready"
			code := http.StatusOK
			if err := pg.Ping(r.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
			if err := zeebe.HealthCheck(r.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(map[string]string{
				"status": status,
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		w.Stop()
	}

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// crmSettingsFromConfig overlays the tenant identifiers from the application
// config onto the default gateway settings. Empty config values keep the
// defaults so a partial config still produces a workable tenant wiring.
func crmSettingsFromConfig(cfg *config.Config) crm.Settings {
	settings := crm.DefaultSettings()

	if cfg.Submission.SystemSource != "" {
		settings.SystemSource = cfg.Submission.SystemSource
	}
	if cfg.Submission.DefaultCurrency != "" {
		settings.DefaultCurrency = cfg.Submission.DefaultCurrency
	}
	settings.AutoAudit = !cfg.Submission.SkipAudit

	org := cfg.CRM.Org
	if org.OrgID != "" {
		settings.OrgID = org.OrgID
	}
	if org.SalesOrgID != "" {
		settings.SalesOrgID = org.SalesOrgID
	}
	if org.ApplicantDeptID != "" {
		settings.DeptID = org.ApplicantDeptID
	}
	if org.ServiceDeptID != "" {
		settings.ServiceDeptID = org.ServiceDeptID
	}
	if org.CustomerTransType != "" {
		settings.TransTypeID = org.CustomerTransType
	}

	oppt := cfg.Submission.Opportunity
	if oppt.TransTypeID != "" {
		settings.OpportunityTransTypeID = oppt.TransTypeID
	}
	if oppt.Source != "" {
		settings.OpportunitySource = oppt.Source
	}
	if oppt.SystemCode != "" {
		settings.OpportunitySystemCode = oppt.SystemCode
	}

	settings.TaskRouting = taskRoutingFromConfig(cfg.CRM.Tasks, settings.TaskRouting)

	return settings
}

// taskRoutingFromConfig overrides the routing identifiers that the config
// sets, kind by kind.
func taskRoutingFromConfig(tasks config.CRMTaskConfig, routing crm.TaskRouting) crm.TaskRouting {
	if tasks.InstallTransType != "" {
		routing.Install.TransType = tasks.InstallTransType
	}
	if tasks.InstallBusType != "" {
		routing.Install.Bustype = tasks.InstallBusType
	}
	if tasks.ActionTransType != "" {
		routing.Install.ActionTransType = tasks.ActionTransType
		routing.Quarterly.ActionTransType = tasks.ActionTransType
	}
	if tasks.ActionBusType != "" {
		routing.Install.ActionBustype = tasks.ActionBusType
		routing.Quarterly.ActionBustype = tasks.ActionBusType
	}
	if tasks.QuarterlyTransType != "" {
		routing.Quarterly.TransType = tasks.QuarterlyTransType
	}
	if tasks.FilterTransType != "" {
		routing.Filter.TransType = tasks.FilterTransType
	}
	if tasks.FilterBusType != "" {
		routing.Filter.Bustype = tasks.FilterBusType
	}
	if tasks.FilterActionTrans != "" {
		routing.Filter.ActionTransType = tasks.FilterActionTrans
		routing.Renewal.ActionTransType = tasks.FilterActionTrans
	}
	if tasks.FilterActionBus != "" {
		routing.Filter.ActionBustype = tasks.FilterActionBus
		routing.Renewal.ActionBustype = tasks.FilterActionBus
	}
	if tasks.RenewalTransType != "" {
		routing.Renewal.TransType = tasks.RenewalTransType
	}
	if tasks.RenewalBusType != "" {
		routing.Renewal.Bustype = tasks.RenewalBusType
	}
	return routing
}
