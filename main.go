package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/semafind/vamanadb/config"
	"github.com/semafind/vamanadb/graph"
	"github.com/semafind/vamanadb/httpapi"
	"github.com/semafind/vamanadb/models"
	"github.com/semafind/vamanadb/nodestore"
	"github.com/semafind/vamanadb/payloadstore"
)

// ---------------------------

func setupLogging(cfg config.ConfigMap) {
	if cfg.PrettyLogOutput {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	// ---------------------------
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Interface("config", cfg).Msg("Loaded config")
	}
}

// ---------------------------

type closer interface {
	Close() error
}

func setupNodeStore(cfg config.StorageConfig, maxNeighbours uint8) (nodestore.NodeStore, closer, error) {
	switch cfg.Mode {
	case "mem":
		return nodestore.NewInMemStore(int(cfg.VectorSize), int(maxNeighbours)), nil, nil
	case "disk":
		store, err := openOrCreateDiskStore(cfg, maxNeighbours)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "tiered":
		longTerm, err := openOrCreateDiskStore(cfg, maxNeighbours)
		if err != nil {
			return nil, nil, err
		}
		store := nodestore.NewTieredStore(longTerm, cfg.MemtableThreshold)
		return store, store, nil
	}
	panic("unreachable storage mode")
}

func openOrCreateDiskStore(cfg config.StorageConfig, maxNeighbours uint8) (*nodestore.DiskStore, error) {
	if _, err := os.Stat(cfg.IndexPath); err == nil {
		return nodestore.OpenDiskStore(cfg.VectorSize, maxNeighbours, cfg.IndexPath, cfg.FreeListPath)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.IndexPath), 0755); err != nil {
		return nil, err
	}
	return nodestore.NewDiskStore(cfg.VectorSize, maxNeighbours, cfg.IndexPath, cfg.FreeListPath)
}

func setupPayloadStore(cfg config.StorageConfig) (payloadstore.PayloadStore, error) {
	if cfg.PayloadBackend == "badger" && cfg.PayloadPath != "" {
		return payloadstore.OpenBadger(cfg.PayloadPath)
	}
	return payloadstore.Open(cfg.PayloadPath)
}

// ---------------------------

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogging(cfg)
	log.Info().Str("version", "0.1.0").Msg("Starting vamanadb")
	// ---------------------------
	nodeStore, storeCloser, err := setupNodeStore(cfg.Storage, uint8(cfg.Graph.RMax))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create node store")
	}
	payloadStore, err := setupPayloadStore(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create payload store")
	}
	// ---------------------------
	// The server starts with an empty graph, points arrive through the API.
	input := make(chan []models.Entry)
	close(input)
	g, err := graph.NewGraph(context.Background(), input, cfg.Graph, nodeStore, payloadStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create graph")
	}
	// ---------------------------
	reg := prometheus.NewRegistry()
	httpServer := httpapi.RunHTTPServer(g, cfg.HttpApi, reg)
	// ---------------------------
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shut")
	}
	// ---------------------------
	if err := payloadStore.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close payload store")
	}
	if storeCloser != nil {
		if err := storeCloser.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close node store")
		}
	}
	log.Info().Msg("Server exiting")
}
