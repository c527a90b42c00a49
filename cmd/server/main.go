/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shipment funding engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Initialize the ledger and seed demo role wallets
  4. Wire the orchestration engine and start the reconciler poll
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: tradeengine.db)
           Use ":memory:" for an in-memory database
  -poll    Reconciler poll interval (default: 10s)
  -reserve Minimum native balance a submitter must hold (default: 1)

DEMO LEDGER:
  Runs against the in-process ledger with five seeded role wallets
  (carrier, seller, buyer, two investors), each funded with native gas
  and stablecoin. Swap NewMemory for a real ledger adapter to run
  against external infrastructure.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconciler poll
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/tradeengine.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/willitship/trade-engine/api"
	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/orchestrator"
	"github.com/willitship/trade-engine/store/sqlite"
	"github.com/willitship/trade-engine/trade"
)

// Demo role wallets, mirroring the standard local-chain accounts.
var demoWallets = []api.Wallet{
	{ID: "carrier", Label: "Pacific Lines (Carrier)", Address: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
	{ID: "seller", Label: "Shenzhen Exports Co (Seller)", Address: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
	{ID: "buyer", Label: "Atlantic Imports LLC (Buyer)", Address: "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"},
	{ID: "investor1", Label: "Meridian Capital (Investor)", Address: "0x90F79bf6EB2c4f870365E785982E1f101E93b906"},
	{ID: "investor2", Label: "Harbor Fund (Investor)", Address: "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"},
}

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "tradeengine.db", "SQLite database path")
	poll := flag.Duration("poll", orchestrator.DefaultPollInterval, "Reconciler poll interval")
	reserve := flag.Int64("reserve", orchestrator.DefaultMinNativeReserve, "Minimum native balance a submitter must hold")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize ledger and seed the demo wallets
	mem := ledger.NewMemory()
	for _, w := range demoWallets {
		mem.MintNative(w.Address, trade.NewAmount(10_000))
		mem.Mint(w.Address, trade.NewAmount(1_000_000))
	}

	// Wire the engine and start the background reconciliation poll
	engine := orchestrator.NewEngine(mem, store)
	engine.Reconciler.Interval = *poll
	engine.Validator.MinNativeReserve = trade.NewAmount(*reserve)
	engine.Reconciler.Start()
	defer engine.Reconciler.Stop()

	// Create router
	handler := api.NewHandler(engine, demoWallets)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
