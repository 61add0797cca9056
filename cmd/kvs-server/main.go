// Command kvs-server binds a TCP listener and serves the key/value
// protocol against a chosen storage engine. Flag parsing and engine
// selection are the CLI front-end sitting in front of the storage
// engine and server loop.
package main

import (
	"context"
	"flag"
	"net"
	"os"

	"github.com/flintkv/flintkv/internal/config"
	"github.com/flintkv/flintkv/internal/engine"
	"github.com/flintkv/flintkv/internal/logging"
	"github.com/flintkv/flintkv/internal/metrics"
	"github.com/flintkv/flintkv/internal/server"
	"github.com/flintkv/flintkv/internal/threadpool"
)

func main() {
	log := logging.New()
	defer log.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	addr := flag.String("addr", cfg.LISTEN_ADDR, "IP:port to bind")
	engineName := flag.String("engine", cfg.ENGINE, "storage engine: kvs or sled")
	dataDir := flag.String("data-dir", cfg.DATA_DIR, "directory for engine data files")
	poolKind := flag.String("pool", cfg.POOL_KIND, "thread pool kind: naive, shared, or external")
	poolSize := flag.Int("pool-size", int(cfg.POOL_SIZE), "worker count (0 = one per CPU)")
	metricsAddr := flag.String("metrics-addr", cfg.METRICS_ADDR, "address to serve Prometheus metrics on (empty disables)")
	flag.Parse()

	tag := server.EngineLog
	if *engineName == "sled" {
		tag = server.EngineBolt
	} else if *engineName != "kvs" {
		log.Fatalw("unknown engine", "engine", *engineName)
	}

	if err := server.CheckAndWriteMarker(*dataDir, tag); err != nil {
		log.Errorw("engine selection failed", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		var reg *metrics.Registry
		m, reg = metrics.New()
		go func() {
			if err := metrics.Serve(context.Background(), *metricsAddr, reg); err != nil {
				log.Warnw("metrics server stopped", "error", err)
			}
		}()
	}

	var onCompact func()
	if m != nil {
		onCompact = m.CompactionsTotal.Inc
	}

	var eng engine.Engine
	if tag == server.EngineBolt {
		eng, err = engine.OpenBolt(*dataDir)
	} else {
		eng, err = engine.Open(*dataDir, cfg.COMPRESS_THRESHOLD_BYTES, cfg.COMPACTION_THRESHOLD_BYTES, onCompact, log)
	}
	if err != nil {
		log.Fatalw("failed to open engine", "error", err)
	}
	defer eng.Close()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Errorw("failed to bind listener", "addr", *addr, "error", err)
		os.Exit(1)
	}

	var pool threadpool.Pool
	switch *poolKind {
	case "naive":
		pool = threadpool.NewNaivePool(*poolSize)
	case "external":
		pool = threadpool.NewExternalPool(*poolSize)
	default:
		pool = threadpool.NewSharedQueuePool(*poolSize, log)
	}

	log.Infow("kvs-server starting", "addr", *addr, "engine", *engineName, "pool", *poolKind, "data_dir", *dataDir)

	srv := server.New(eng, listener, pool, m, log)
	if err := srv.Serve(); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}
