package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ladder/api/feed"
	"ladder/api/grpcserver"
	"ladder/api/rest"
	"ladder/domain/matching"
	"ladder/domain/ticks"
	"ladder/infra/cache"
	"ladder/infra/config"
	"ladder/infra/kafka"
	"ladder/infra/logging"
	"ladder/infra/metrics"
	entrywal "ladder/infra/wal/entry"
	exitwal "ladder/infra/wal/exit"
	"ladder/jobs/broadcaster"
	"ladder/service"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ladder: %+v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, logCloser := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	conv, err := ticks.NewConverter(cfg.Instrument.TickSize)
	if err != nil {
		return err
	}

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---------------- Entry / Exit WAL ----------------

	journal, err := entrywal.Open(entrywal.Config{
		Dir:         cfg.WAL.Dir,
		SegmentSize: cfg.WAL.SegmentSize,
	})
	if err != nil {
		return errors.Wrap(err, "entry wal")
	}
	defer journal.Close()

	outbox, err := exitwal.Open(cfg.Outbox.Dir)
	if err != nil {
		return errors.Wrap(err, "exit wal")
	}
	defer outbox.Close()

	// ---------------- Service + recovery ----------------

	hub := feed.NewHub(256, log)
	defer hub.Close()

	svc := service.NewOrderService(service.Options{
		Symbol:  cfg.Instrument.Symbol,
		Engine:  matching.New(matching.WithMaxQuantity(cfg.Instrument.MaxOrderQty)),
		Journal: journal,
		Outbox:  outbox,
		Feed:    hub,
		Metrics: m,
		Logger:  log,
	})
	if _, err := svc.Recover(cfg.Snapshot.Dir, cfg.WAL.Dir); err != nil {
		return errors.Wrap(err, "recovery")
	}

	var depthCache *cache.DepthCache
	if cfg.Redis.Enabled {
		depthCache = cache.NewDepthCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		defer depthCache.Close()
		if err := depthCache.Ping(context.Background()); err != nil {
			log.Warn("redis unreachable, depth cache degraded", "addr", cfg.Redis.Addr, "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var jobs sync.WaitGroup

	// ---------------- Background jobs ----------------

	snapJob := service.NewSnapshotJob(svc, cfg.Snapshot.Dir, cfg.Snapshot.Interval, depthCache, cfg.Instrument.DepthLevels)
	jobs.Add(1)
	go func() {
		defer jobs.Done()
		snapJob.Run(ctx)
	}()

	pub, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		bc := broadcaster.New(outbox, pub, broadcaster.Config{
			Key:        cfg.Instrument.Symbol,
			Interval:   cfg.Broker.PollInterval,
			MaxRetries: cfg.Broker.MaxRetries,
		}, log, m)
		defer bc.Close()
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			bc.Run(ctx)
		}()
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.GRPC.Addr)
	}
	grpcSrv := grpcserver.NewServer(svc, conv, cfg.Instrument.DepthLevels, log).Register()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc server exited", "err", err)
			stop()
		}
	}()

	// ---------------- HTTP ----------------

	var httpSrv *http.Server
	if cfg.HTTP.Enabled {
		httpSrv = &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: rest.NewRouter(rest.Deps{
				Service:     svc,
				Ticks:       conv,
				DepthLevels: cfg.Instrument.DepthLevels,
				Cache:       depthCache,
				Feed:        hub,
				Metrics:     m,
				Logger:      log,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", "err", err)
				stop()
			}
		}()
	}

	log.Info("ladder running",
		"symbol", cfg.Instrument.Symbol, "tick_size", cfg.Instrument.TickSize,
		"grpc", cfg.GRPC.Addr, "http", cfg.HTTP.Addr, "broker", cfg.Broker.Driver)

	<-ctx.Done()
	log.Info("shutting down")

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	grpcSrv.GracefulStop()
	jobs.Wait()
	return journal.Sync()
}

func newPublisher(cfg *config.Config) (broadcaster.Publisher, error) {
	switch cfg.Broker.Driver {
	case "sarama":
		return kafka.NewSaramaPublisher(cfg.Broker.Brokers, cfg.Broker.Topic)
	case "kafka-go":
		return kafka.NewWriterPublisher(cfg.Broker.Brokers, cfg.Broker.Topic), nil
	default:
		return nil, nil
	}
}
