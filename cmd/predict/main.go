package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"spacepredict/cli"
	"spacepredict/config"
	"spacepredict/db"
	"spacepredict/logger"
	"spacepredict/ml"
	"spacepredict/pipeline"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "config file")
	modelPath := flag.String("model", "", "model artifact (overrides config)")
	modelType := flag.String("model-type", "", "model artifact type (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *modelType != "" {
		cfg.Model.Type = *modelType
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	tables, err := ml.OpenLabelTables(cfg.Labels.Path)
	if err != nil {
		log.Fatal("failed to build label tables", zap.Error(err))
	}
	model, err := ml.LoadPassengerModel(cfg.Model.Type, cfg.Model.Path)
	if err != nil {
		log.Fatal("failed to load model", zap.String("path", cfg.Model.Path), zap.Error(err))
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithModelType(cfg.Model.Type),
	}
	if cfg.Journal.Enabled {
		journal, err := db.OpenJournal(cfg.Journal.Path)
		if err != nil {
			log.Fatal("failed to open journal", zap.String("path", cfg.Journal.Path), zap.Error(err))
		}
		defer journal.Close()
		opts = append(opts, pipeline.WithJournal(journal))
	}

	predictor, err := pipeline.NewPredictor(tables, ml.NewModelHandle(model), opts...)
	if err != nil {
		log.Fatal("failed to create predictor", zap.Error(err))
	}

	collector := cli.NewCollector(os.Stdin, os.Stdout)
	raw, err := collector.CollectPassenger()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			log.Warn("input ended before all details were entered")
			os.Exit(1)
		}
		log.Fatal("failed to read input", zap.Error(err))
	}

	result, err := predictor.Predict(context.Background(), raw)
	if err != nil {
		log.Fatal("prediction failed", zap.Error(err))
	}
	collector.PrintResult(result)
}

// defaultConfigPath looks for config.yaml in the working directory, then in
// the repository root when run from cmd/predict.
func defaultConfigPath() string {
	for _, p := range []string{"config.yaml", filepath.Join("..", "..", "config.yaml")} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "config.yaml"
}
