/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ration distribution engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store (households, balances, reservations, chain)
  3. Wire ledger, reservation manager, engine, and HTTP handler
  4. Start the reservation expiry sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: ration.db)
                   Use ":memory:" for an in-memory database
  -difficulty      Chain proof-of-work difficulty in hex zeros (default: 2)
  -member-cap      Entitlement scaling cap per household (default: 6)
  -cutover         Entitlement cutover on member change:
                   next-month | immediate (default: next-month)
  -sweep-interval  Reservation expiry sweep interval (default: 15m)
  -log-level       logrus level: debug, info, warn, error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper and close the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ration.db"

  # Run with in-memory database and immediate cutover
  ./server -db=":memory:" -cutover=immediate

SEE ALSO:
  - api/server.go: Router configuration
  - engine/engine.go: Distribution workflow
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/smartration/ration-engine/api"
	"github.com/smartration/ration-engine/engine"
	"github.com/smartration/ration-engine/ledger"
	"github.com/smartration/ration-engine/notify"
	"github.com/smartration/ration-engine/ration"
	"github.com/smartration/ration-engine/reservation"
	"github.com/smartration/ration-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ration.db", "SQLite database path")
	difficulty := flag.Int("difficulty", ledger.DefaultDifficulty, "chain proof-of-work difficulty")
	memberCap := flag.Int("member-cap", ration.DefaultMemberCap, "entitlement scaling cap per household")
	cutover := flag.String("cutover", string(ration.CutoverNextMonth), "entitlement cutover: next-month | immediate")
	sweepInterval := flag.Duration("sweep-interval", reservation.DefaultSweepInterval, "reservation expiry sweep interval")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	// Logging
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	cutoverMode := ration.EntitlementCutover(*cutover)
	if !cutoverMode.Valid() {
		log.Fatalf("unknown cutover mode %q", *cutover)
	}

	// Initialize store
	calc := ration.NewCalculator(*memberCap)
	store, err := sqlite.New(*dbPath, calc)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire components
	chain := ledger.New(store, ledger.WithDifficulty(*difficulty))
	dispatcher := notify.NewLogDispatcher(log)
	manager := reservation.NewManager(store, store, store, dispatcher, log)

	eng := engine.New(engine.Config{
		Households:   store,
		Balances:     store,
		Calculator:   calc,
		Ledger:       chain,
		Reservations: manager,
		Dispatcher:   dispatcher,
		Log:          log,
		Metrics:      engine.NewMetrics(prometheus.DefaultRegisterer),
		Cutover:      cutoverMode,
	})

	// Background expiry sweep
	sweeper := reservation.NewSweeper(manager, log)
	sweeper.CheckInterval = *sweepInterval
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP server
	handler := api.NewHandler(eng, manager, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("server stopped")
}
