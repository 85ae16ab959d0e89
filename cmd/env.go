package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/alert"
	"github.com/sells-group/crm-scoring/internal/collector"
	"github.com/sells-group/crm-scoring/internal/config"
	"github.com/sells-group/crm-scoring/internal/crm"
	"github.com/sells-group/crm-scoring/internal/db"
	"github.com/sells-group/crm-scoring/internal/engine"
	"github.com/sells-group/crm-scoring/internal/enrich"
	"github.com/sells-group/crm-scoring/internal/lease"
	"github.com/sells-group/crm-scoring/internal/metrics"
	"github.com/sells-group/crm-scoring/internal/resilience"
	"github.com/sells-group/crm-scoring/internal/scoring"
	"github.com/sells-group/crm-scoring/internal/store"
	"github.com/sells-group/crm-scoring/internal/warehouse"
	"github.com/sells-group/crm-scoring/pkg/anthropic"
	"github.com/sells-group/crm-scoring/pkg/salesforce"
)

// scoringEnv holds everything the score, batch and serve commands need.
type scoringEnv struct {
	Store   store.HistoryStore
	Engine  *engine.Engine
	CRM     *crm.Source
	Metrics *metrics.Manager

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *scoringEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *scoringEnv) onClose(fn func()) { e.closers = append(e.closers, fn) }

// initStore opens and migrates the history store.
func initStore(ctx context.Context, c *config.Config) (store.HistoryStore, error) {
	var (
		st  store.HistoryStore
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates the config for mode and wires the scoring engine.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*scoringEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &scoringEnv{Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	profiles, err := scoring.LoadProfiles(cfg.Scoring.LeadProfilePath, cfg.Scoring.HealthProfilePath)
	if err != nil {
		return nil, eris.Wrap(err, "load scoring profiles")
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.onClose(func() { _ = st.Close() })

	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)

	whPool, err := db.Open(ctx, cfg.Warehouse.DatabaseURL, &db.PoolConfig{MaxConns: cfg.Warehouse.MaxConns})
	if err != nil {
		return nil, eris.Wrap(err, "open warehouse")
	}
	env.onClose(whPool.Close)
	wh := warehouse.New(whPool, retry)

	sf, err := initSalesforce(cfg.Salesforce)
	if err != nil {
		return nil, err
	}
	env.CRM = crm.New(sf, crm.Config{
		ContractValueField: cfg.Salesforce.ContractValueField,
		LeadFilter:         cfg.Salesforce.LeadFilter,
		AccountFilter:      cfg.Salesforce.AccountFilter,
		Fields: crm.WriteBackFields{
			LeadScore:        cfg.Salesforce.Fields.LeadScore,
			LeadGrade:        cfg.Salesforce.Fields.LeadGrade,
			HealthScore:      cfg.Salesforce.Fields.HealthScore,
			RiskCategory:     cfg.Salesforce.Fields.RiskCategory,
			ChurnProbability: cfg.Salesforce.Fields.ChurnProbability,
		},
	}, retry)
	if cfg.Salesforce.WriteBack {
		if err := env.CRM.ValidateWriteBack(ctx); err != nil {
			return nil, err
		}
	}

	locker, err := initLocker(ctx, env)
	if err != nil {
		return nil, err
	}

	window := time.Duration(cfg.Scoring.WindowDays) * 24 * time.Hour
	coll := collector.New(collector.Providers{
		Tickets:   env.CRM,
		Sales:     env.CRM,
		Contracts: env.CRM,
		Web:       wh,
		Payments:  wh,
		Usage:     wh,
	}, window)

	persist := resilience.PersistenceRetryConfig()
	if cfg.Retry.PersistenceAttempts > 0 {
		persist.MaxAttempts = cfg.Retry.PersistenceAttempts
	}

	eng, err := engine.New(engine.Deps{
		Profiles:  profiles,
		Subjects:  env.CRM,
		Collector: coll,
		Scorer: scoring.NewScorer(scoring.LeadRules{
			EnterpriseDomains: cfg.Scoring.EnterpriseDomains,
			FreeMailDomains:   cfg.Scoring.FreeMailDomains,
		}),
		Enricher: initEnricher(),
		Emitter:  alert.NewEmitter(cfg.Alert.DropThreshold, cfg.Alert.DueInDays),
		Store:    st,
		Tasks:    env.CRM,
		Locker:   locker,
		Metrics:  env.Metrics,
	}, engine.Config{
		FallbackConfidence: cfg.Scoring.FallbackConfidence,
		PersistRetry:       persist,
	})
	if err != nil {
		return nil, err
	}
	env.Engine = eng

	ok = true
	return env, nil
}

func initSalesforce(c config.SalesforceConfig) (salesforce.Client, error) {
	pemData, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         c.LoginURL,
		Username:       c.Username,
		ConsumerKey:    c.ClientID,
		ConsumerRSAPem: string(pemData),
	}, salesforce.WithRateLimit(c.RateLimitRPS))
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}
	return sf, nil
}

// initEnricher returns the AI adapter, disabled when no key is configured.
func initEnricher() enrich.Enricher {
	var client anthropic.Client
	if cfg.Anthropic.Key != "" {
		client = anthropic.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Info("SCORING_ANTHROPIC_KEY not set, AI enrichment disabled")
	}
	return enrich.NewAdapter(client, enrich.Config{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Timeout:   time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		RPS:       cfg.Batch.AIRPS,
		Burst:     cfg.Batch.AIBurst,
		Circuit:   resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs),
	})
}

// initLocker returns a Redis lease when redis.addr is set, otherwise an
// in-process one.
func initLocker(ctx context.Context, env *scoringEnv) (lease.Locker, error) {
	if cfg.Redis.Addr == "" {
		return lease.NewLocal(), nil
	}
	rc, err := lease.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	env.onClose(func() { _ = rc.Close() })
	zap.L().Info("using redis subject lease", zap.String("addr", cfg.Redis.Addr))
	return lease.NewRedis(rc, time.Duration(cfg.Redis.LeaseTTLSecs)*time.Second), nil
}
