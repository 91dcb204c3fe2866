package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafio1020/project-aeras/internal/backend"
	"github.com/rafio1020/project-aeras/internal/config"
	"github.com/rafio1020/project-aeras/internal/core"
	"github.com/rafio1020/project-aeras/internal/hardware"
	"github.com/rafio1020/project-aeras/internal/logger"
	"github.com/rafio1020/project-aeras/internal/messaging"
	"github.com/rafio1020/project-aeras/internal/metrics"
)

func main() {
	// Service log level
	var serviceLogLevel int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")

	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	// Create leveled logger
	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	cfg, err := config.LoadKiosk()
	if err != nil {
		l.Fatalf("Failed to load configuration: %v", err)
	}

	l.Infof("Starting kiosk node %s...", cfg.NodeID)

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		collector.Serve(cfg.MetricsAddr)
		l.Infof("Metrics listening on %s", cfg.MetricsAddr)
	}

	correlator := backend.NewClient(cfg.BackendURL, 0, l)
	redis := messaging.NewRedisClient(cfg.RedisHost, cfg.RedisPort, l, messaging.Callbacks{})

	var io core.SignalIO
	if cfg.SignalSource == "gpio" {
		io = hardware.NewKioskPanel()
	}

	system := core.NewKioskSystem(core.KioskConfig{
		NodeID:             cfg.NodeID,
		PickupBlock:        cfg.PickupBlock,
		Destination:        cfg.Destination,
		LightThreshold:     cfg.LightThreshold,
		StatusPollInterval: cfg.StatusPollInterval,
		RequestTimeout:     cfg.RequestTimeout,
	}, correlator, redis, io, l, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := system.Start(ctx); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	cancel()
	system.Shutdown()
	l.Infof("Shutdown complete")
}
