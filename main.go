package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"spacepredict/config"
	"spacepredict/db"
	phttp "spacepredict/http"
	"spacepredict/logger"
	"spacepredict/ml"
	"spacepredict/monitoring"
	"spacepredict/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Label tables and model, both fixed before serving
	tables, err := ml.OpenLabelTables(cfg.Labels.Path)
	if err != nil {
		log.Fatal("failed to build label tables", zap.Error(err))
	}
	model, err := ml.LoadPassengerModel(cfg.Model.Type, cfg.Model.Path)
	if err != nil {
		log.Fatal("failed to load model", zap.String("path", cfg.Model.Path), zap.Error(err))
	}
	handle := ml.NewModelHandle(model)
	log.Info("model loaded",
		zap.String("type", cfg.Model.Type),
		zap.String("path", cfg.Model.Path),
		zap.String("labels_version", tables.Version()),
	)

	if cfg.Model.Watch {
		watcher := ml.NewModelWatcher(handle, cfg.Model.Type, cfg.Model.Path, log.Named("model"))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error("model watcher stopped", zap.Error(err))
			}
		}()
	}

	// 3. Metrics, journal and feed
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []pipeline.Option{
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithModelType(cfg.Model.Type),
		pipeline.WithCacheSize(cfg.Cache.Size),
		pipeline.WithMetrics(monitoring.NewMetrics(registry)),
	}

	var journal *db.Journal
	if cfg.Journal.Enabled {
		journal, err = db.OpenJournal(cfg.Journal.Path)
		if err != nil {
			log.Fatal("failed to open journal", zap.String("path", cfg.Journal.Path), zap.Error(err))
		}
		defer journal.Close()
		log.Info("journal initialized", zap.String("path", cfg.Journal.Path))
		opts = append(opts, pipeline.WithJournal(journal))
	}

	var hub *monitoring.Hub
	if cfg.Feed.Enabled {
		hub = monitoring.NewHub(log.Named("feed"))
		go hub.Run(ctx)
		opts = append(opts, pipeline.WithPublisher(hub))
	}

	predictor, err := pipeline.NewPredictor(tables, handle, opts...)
	if err != nil {
		log.Fatal("failed to create predictor", zap.Error(err))
	}

	// 4. Start HTTP server
	handlers := phttp.NewHandlers(predictor, log)
	handlers.SetGatherer(registry)
	if journal != nil {
		handlers.SetJournal(journal)
	}
	if hub != nil {
		handlers.SetFeed(http.HandlerFunc(hub.HandleWebSocket))
	}

	server := phttp.NewServer(phttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, handlers, log.Named("http"))

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errs:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	if err := server.Stop(context.Background()); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	log.Info("exiting")
}
