package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/harvest"
	"github.com/ppiankov/factharvest/internal/logging"
	"github.com/ppiankov/factharvest/internal/metrics"
	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/pipeline"
	"github.com/ppiankov/factharvest/internal/sink"
	"github.com/ppiankov/factharvest/internal/store"
)

// app holds the components every run command shares
type app struct {
	cfg      *model.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	runner   *pipeline.Runner

	store store.HistoricalStore
	sink  sink.Sink
}

func newApp(ctx context.Context, cfg *model.Config) (*app, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	sk, err := sink.New(cfg.Sink, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	coordinator := harvest.FromConfig(cfg, m, logger)
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		runner:   pipeline.NewRunner(cfg, coordinator, st, sk, m, logger),
		store:    st,
		sink:     sk,
	}, nil
}

func (a *app) Close() error {
	err := errors.Join(a.sink.Close(), a.store.Close())
	_ = a.logger.Sync()
	return err
}
