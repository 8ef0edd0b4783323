// Command phaeton runs the AC charger supervisory driver: it owns the
// Modbus/TCP connection, exposes control state on the system message
// bus, and serves a dashboard/HTTP surface, grounded on the teacher's
// main.go flag/signal/logger wiring.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/phaeton-driver/internal/archive"
	"github.com/devskill-org/phaeton-driver/internal/bus"
	"github.com/devskill-org/phaeton-driver/internal/config"
	"github.com/devskill-org/phaeton-driver/internal/driver"
	"github.com/devskill-org/phaeton-driver/internal/logging"
	"github.com/devskill-org/phaeton-driver/internal/persistence"
	"github.com/devskill-org/phaeton-driver/internal/pricing"
	"github.com/devskill-org/phaeton-driver/internal/session"
	"github.com/devskill-org/phaeton-driver/internal/web"
)

func main() {
	configFile := flag.String("config", "config.json", "Path to configuration file")
	help := flag.Bool("help", false, "Show help information")
	serverOnly := flag.Bool("serverOnly", false, "Run only the web dashboard, without the Modbus poll loop")
	showConfig := flag.Bool("showconfig", false, "Print the resolved, defaulted configuration as JSON and exit")
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Config file %s not found, using defaults\n", *configFile)
			cfg = config.DefaultConfig()
		} else {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if *showConfig {
		fmt.Println(cfg.String())
		return
	}

	fmt.Println("========================================")
	fmt.Println("Phaeton AC Charger Supervisory Driver")
	fmt.Println("========================================")
	fmt.Printf("Modbus target:   %s:%d\n", cfg.Modbus.Host, cfg.Modbus.Port)
	fmt.Printf("Poll interval:   %s\n", cfg.PollInterval)
	fmt.Printf("Web listen addr: %s\n", cfg.Web.ListenAddr)
	if *serverOnly {
		fmt.Println("Mode:            server-only (no poll loop)")
	}
	fmt.Println("========================================")

	ringBuf := logging.NewRingBuffer(cfg.Logging.RingBufferLines)
	logger := log.New(io.MultiWriter(os.Stdout, ringBuf), "[PHAETON] ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	store := bus.NewStore()
	commandSink := bus.NewChanSink(32)

	persist := persistence.NewManager(cfg.Persistence.StateFilePath, logger)
	if err := persist.Load(); err != nil {
		logger.Printf("persistence: load failed, starting from defaults: %v", err)
	}

	sessions := session.NewManager(cfg.Persistence.MaxHistoryInMemory, logger)

	pricer, err := pricing.NewSource(cfg.Pricing.Source, cfg.Pricing.StaticRate, "")
	if err != nil {
		logger.Printf("pricing: %v, falling back to static rate", err)
		pricer = pricing.NewStaticSource(cfg.Pricing.StaticRate)
	}

	archiver, err := archive.Open(cfg.Persistence.PostgresConnString, logger)
	if err != nil {
		logger.Printf("archive: disabled, could not open Postgres connection: %v", err)
		archiver, _ = archive.Open("", logger)
	}
	defer archiver.Close()

	drv := driver.NewDriver(cfg, logger, store, commandSink.C(), persist, sessions, pricer, archiver)

	busService := bus.NewService(store, commandSink, cfg.Bus.VendorPrefix, cfg.Bus.DeviceInstance, logger)
	if err := busService.Connect(cfg.Bus.RequireBus, cfg.Bus.UseSessionBusFallback); err != nil {
		if cfg.Bus.RequireBus {
			logger.Printf("bus: fatal: %v", err)
			os.Exit(1)
		}
		logger.Printf("bus: disabled, continuing without message bus export: %v", err)
	} else {
		go busService.Run()
	}
	defer busService.Stop()
	drv.SetBusService(busService)

	webServer := web.NewServer(cfg, logger, drv.Watch(), ringBuf, commandSink)
	if err := webServer.Start(); err != nil {
		logger.Printf("web: fatal: %v", err)
		os.Exit(1)
	}

	if !*serverOnly {
		go drv.Run(ctx)
		logger.Printf("Driver started. Press Ctrl+C to stop...")
	} else {
		logger.Printf("Server-only mode: web dashboard is up, poll loop not started. Press Ctrl+C to stop...")
	}

	<-sigChan
	logger.Printf("Shutdown signal received, stopping...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Printf("web: shutdown error: %v", err)
	}

	// Give the driver goroutine a moment to finish its shutdown sequence
	// (final persistence write, Modbus disconnect) before exiting.
	if !*serverOnly {
		time.Sleep(200 * time.Millisecond)
	}

	logger.Printf("Stopped successfully")
}

func showHelp() {
	fmt.Println("phaeton - AC EV charger Modbus/TCP supervisory driver")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls an Alfen-style AC charger over Modbus/TCP, derives a charging")
	fmt.Println("  current from mode/PV-excess/schedule inputs, and exposes control state")
	fmt.Println("  on the system message bus and a local HTTP dashboard.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  phaeton [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  phaeton")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  phaeton --config=config.json")
	fmt.Println()
	fmt.Println("  # Run only the web dashboard, without the Modbus poll loop")
	fmt.Println("  phaeton -serverOnly")
	fmt.Println()
	fmt.Println("  # Print the resolved configuration and exit")
	fmt.Println("  phaeton -showconfig")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  phaeton -help")
}
