package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbyrne/coolwatch/internal/alert"
	"github.com/kbyrne/coolwatch/internal/audit"
	"github.com/kbyrne/coolwatch/internal/clock"
	"github.com/kbyrne/coolwatch/internal/config"
	"github.com/kbyrne/coolwatch/internal/controlplane"
	"github.com/kbyrne/coolwatch/internal/engine"
	"github.com/kbyrne/coolwatch/internal/models"
	"github.com/kbyrne/coolwatch/internal/store"
	"github.com/kbyrne/coolwatch/internal/syncer"
)

var (
	listenAddr string
	dbPath     string
	siteID     string
	remoteURL  string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the coolwatch daemon",
	Long:  `Starts the coolwatch daemon which runs the cooling timers and provides the HTTP API for the kitchen board.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().StringVar(&siteID, "site", "", "Site identifier (overrides config)")
	daemonCmd.Flags().StringVar(&remoteURL, "remote", "", "HQ backend base URL (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting coolwatch daemon...")

	cfg, err := config.LoadFromHome()
	if err != nil {
		log.Printf("Warning: failed to load config: %v (using defaults)", err)
		cfg = config.DefaultConfig()
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if siteID != "" {
		cfg.SiteID = siteID
	}
	if remoteURL != "" {
		cfg.RemoteURL = remoteURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	trail := audit.NewTrailWriter(s)

	// Create the cooling engine and reload open sessions after a restart
	eng := engine.New(s, clock.System{}, &engine.Config{
		SiteID:        cfg.SiteID,
		SweepInterval: cfg.SweepInterval(),
	})
	if err := eng.Rehydrate(); err != nil {
		log.Printf("Warning: rehydrate failed: %v", err)
	}

	// Wire escalation alerts and the audit trail to status changes
	var notifier alert.Notifier = alert.LogNotifier{}
	if cfg.AlertCommand != "" {
		notifier = alert.NewExecNotifier(cfg.AlertCommand)
	}
	eng.Subscribe(func(ev models.StatusChange) {
		if alert.Escalation(ev) {
			notifier.Notify(ev)
		}
	})
	eng.Subscribe(trail.RecordStatusChange)

	// Optional HQ sync
	var rec *syncer.Reconciler
	if cfg.RemoteURL != "" {
		remote := syncer.NewHTTPRemote(cfg.RemoteURL)
		rec = syncer.New(eng, remote, clock.System{}, trail, cfg.SiteID, cfg.ReconcileInterval())
		eng.SetPusher(rec.PushAsync)
		rec.Start()
		defer rec.Stop()
		log.Printf("Sync enabled against %s", cfg.RemoteURL)
	} else {
		log.Println("No remote configured, running site-local only")
	}

	// Create service and server
	service := controlplane.NewService(eng, trail, s)
	server := controlplane.NewServer(service, s, cfg.ListenAddr)

	eng.Start()
	defer eng.Stop()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
