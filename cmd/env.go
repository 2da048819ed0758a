package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/agent"
	"github.com/sells-group/reengage-cli/internal/cadence"
	"github.com/sells-group/reengage-cli/internal/crm"
	"github.com/sells-group/reengage-cli/internal/fieldmap"
	"github.com/sells-group/reengage-cli/internal/label"
	"github.com/sells-group/reengage-cli/internal/metrics"
	"github.com/sells-group/reengage-cli/internal/notesync"
	"github.com/sells-group/reengage-cli/internal/pipeline"
	"github.com/sells-group/reengage-cli/internal/resilience"
	"github.com/sells-group/reengage-cli/internal/store"
	"github.com/sells-group/reengage-cli/pkg/gemini"
	"github.com/sells-group/reengage-cli/pkg/openai"
	"github.com/sells-group/reengage-cli/pkg/pipedrive"
)

// appEnv holds the clients and services shared by the commands.
type appEnv struct {
	Store    store.Store
	CRM      *crm.Repository
	FieldMap *fieldmap.Service
	Cadences *cadence.Resolver
	Pipeline *pipeline.Pipeline
	Syncer   *notesync.Syncer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initCRM builds the Pipedrive client, the field map and the deal repository
// over st.
func initCRM(st store.Store) (*crm.Repository, *fieldmap.Service) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("pipedrive: circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	retry := resilience.FromRetryConfig(cfg.Pipedrive.MaxAttempts, cfg.Pipedrive.BackoffMs)
	retry.OnRetry = resilience.RetryLogger("pipedrive", "request")

	client := pipedrive.NewClient(cfg.Pipedrive.Token,
		pipedrive.WithBaseURL(cfg.Pipedrive.BaseURL),
		pipedrive.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Pipedrive.TimeoutSecs) * time.Second}),
		pipedrive.WithPageLimit(cfg.Pipedrive.PageLimit),
		pipedrive.WithRateLimit(cfg.Pipedrive.RateLimitRPS),
		pipedrive.WithRetry(retry),
		pipedrive.WithCircuitBreaker(breaker),
	)

	fm := fieldmap.New(client, st, fieldmap.KeysFromConfig(cfg.Fields),
		fieldmap.WithTTL(cfg.FieldMap.CacheTTL()),
	)
	repo := crm.NewRepository(client, cfg.Fields,
		crm.WithRequestDelay(cfg.Pipedrive.RequestDelay()),
		crm.WithStageNamer(fm),
	)
	return repo, fm
}

// initSyncEnv builds what sync-notes and cache clear need: no LLM clients.
func initSyncEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("sync"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	repo, fm := initCRM(st)
	return &appEnv{
		Store:    st,
		CRM:      repo,
		FieldMap: fm,
		Syncer:   notesync.New(repo, cfg.Cadence.WaitingStages, cfg.Pipedrive.RequestDelay()),
	}, nil
}

// initEnv sets up the store, every API client and the pipeline. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cadences, err := cadence.LoadFile(cfg.Cadence.File)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	repo, fm := initCRM(st)

	if err := fm.Warm(ctx); err != nil {
		zap.L().Warn("field map warm-up failed, lookups will retry", zap.Error(err))
	}

	labels, err := label.LoadFile(cfg.Label.File, fm)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	oa := openai.NewClient(cfg.OpenAI.Key, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	runtime := agent.NewRuntime(oa,
		agent.WithPollInterval(cfg.OpenAI.PollInterval()),
		agent.WithMaxPollAttempts(cfg.OpenAI.MaxPollAttempts),
		agent.WithPollObserver(metrics.ObservePollAttempts),
	)

	gm, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.Gemini.Key,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(cfg, pipeline.Deps{
		CRM:        repo,
		Analyst:    agent.NewAnalyst(runtime),
		Researcher: agent.NewResearcher(gm, cfg.Gemini.Model, cfg.Gemini.Temperature),
		Writer:     agent.NewWriter(runtime),
		Ledger:     st,
		Cadences:   cadences,
		Labels:     labels,
		Lookup:     fm,
	})

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.Ints("stages", cadences.Stages()),
		zap.Strings("labels", labels.Labels()),
	)

	return &appEnv{
		Store:    st,
		CRM:      repo,
		FieldMap: fm,
		Cadences: cadences,
		Pipeline: p,
		Syncer:   notesync.New(repo, cfg.Cadence.WaitingStages, cfg.Pipedrive.RequestDelay()),
	}, nil
}
