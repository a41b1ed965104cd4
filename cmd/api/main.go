package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/3244536/Magest/pkg/config"
	"github.com/3244536/Magest/pkg/ledger"
	"github.com/3244536/Magest/pkg/logger"
	"github.com/3244536/Magest/pkg/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	log     *zap.Logger
}

func NewServer(s store.Storage, log *zap.Logger) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, log),
		storage: s,
		log:     log,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	router.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	router.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	router.HandleFunc("/clients/{id}", s.getClientHandler).Methods("GET")
	router.HandleFunc("/clients/{id}", s.deleteClientHandler).Methods("DELETE")
	router.HandleFunc("/clients/{id}/operations", s.clientOperationsHandler).Methods("GET")
	router.HandleFunc("/clients/{id}/payments", s.clientPaymentsHandler).Methods("GET")

	router.HandleFunc("/operations", s.listOperationsHandler).Methods("GET")
	router.HandleFunc("/operations", s.createOperationHandler).Methods("POST")
	router.HandleFunc("/operations/{id}", s.getOperationHandler).Methods("GET")
	router.HandleFunc("/operations/{id}", s.deleteOperationHandler).Methods("DELETE")
	router.HandleFunc("/operations/{id}/early-payoff", s.earlyPayoffHandler).Methods("GET")
	router.HandleFunc("/operations/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/operations/{id}/payments", s.recordPaymentHandler).Methods("POST")

	router.HandleFunc("/payments/{id}", s.getPaymentHandler).Methods("GET")
	router.HandleFunc("/payments/{id}", s.deletePaymentHandler).Methods("DELETE")

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sqliteStore, err := store.NewSQLiteStore(cfg.Database.Path, log.Named("store"))
	if err != nil {
		log.Fatal("Failed to initialize SQLite store", zap.Error(err))
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, log)
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", httpServer.Addr), zap.String("env", cfg.App.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
