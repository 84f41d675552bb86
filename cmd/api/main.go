package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/saccoLoan/pkg/auth"
	"github.com/mcclellann/saccoLoan/pkg/bonus"
	"github.com/mcclellann/saccoLoan/pkg/config"
	"github.com/mcclellann/saccoLoan/pkg/dashboard"
	"github.com/mcclellann/saccoLoan/pkg/ledger"
	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/members"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/notify"
	"github.com/mcclellann/saccoLoan/pkg/receipt"
	"github.com/mcclellann/saccoLoan/pkg/scheduler"
	"github.com/mcclellann/saccoLoan/pkg/store"
)

// Server holds the services behind the HTTP API.
type Server struct {
	ledger    *ledger.Ledger
	bonuses   *bonus.Service
	members   *members.Directory
	dashboard *dashboard.Service
	sessions  *auth.Sessions
	storage   store.Storage // Keep a reference to the storage to close it
}

// NewServer wires every service over one store. Receipts are written to receiptOut.
func NewServer(cfg *config.Config, s store.Storage, receiptOut io.Writer) *Server {
	sessions := auth.NewSessions(
		cfg.Auth.AdminUser,
		cfg.Auth.AdminPasswordHash,
		cfg.Auth.SessionSecret,
		time.Duration(cfg.Auth.SessionExpiryMinutes)*time.Minute,
	)
	printer := receipt.NewPrinter(receiptOut, sessions)
	notifier := notify.NewLogNotifier()
	directory := members.NewDirectory(s, printer)

	settings := ledger.StaticSettings{
		InterestRatePercent: cfg.Loan.InterestRatePercent,
		LoanTermMonths:      cfg.Loan.TermMonths,
	}
	l := ledger.NewLedger(s, directory, settings, ledger.WithReceipts(printer), ledger.WithNotifier(notifier))
	bonuses := bonus.NewService(s, printer, notifier)

	changes := logger.WithService("changes")
	logChange := func(c models.Change) { changes.Debug("Collections changed", "collections", c.Collections) }
	l.Subscribe(logChange)
	bonuses.Subscribe(logChange)

	return &Server{
		ledger:    l,
		bonuses:   bonuses,
		members:   directory,
		dashboard: dashboard.NewService(s, directory),
		sessions:  sessions,
		storage:   s,
	}
}

// Router registers every route. Writes require a session token.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.sessionMiddleware)

	router.HandleFunc("/login", s.loginHandler).Methods("POST")
	router.HandleFunc("/calculator", s.calculatorHandler).Methods("GET")

	router.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	router.HandleFunc("/members", s.listMembersHandler).Methods("GET")
	router.HandleFunc("/members", s.protect(s.registerMemberHandler)).Methods("POST")
	router.HandleFunc("/members/{id}", s.getMemberHandler).Methods("GET")
	router.HandleFunc("/members/{id}/approve", s.protect(s.approveMemberHandler)).Methods("POST")
	router.HandleFunc("/members/{id}/reject", s.protect(s.rejectMemberHandler)).Methods("POST")
	router.HandleFunc("/members/{id}/performance", s.memberPerformanceHandler).Methods("GET")
	router.HandleFunc("/members/{id}/contributions", s.protect(s.addContributionHandler)).Methods("POST")
	router.HandleFunc("/performance", s.performanceTableHandler).Methods("GET")

	router.HandleFunc("/applications", s.listApplicationsHandler).Methods("GET")
	router.HandleFunc("/applications", s.protect(s.submitApplicationHandler)).Methods("POST")
	router.HandleFunc("/applications/{id}/approve", s.protect(s.approveApplicationHandler)).Methods("POST")
	router.HandleFunc("/applications/{id}/reject", s.protect(s.rejectApplicationHandler)).Methods("POST")

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/installments", s.listInstallmentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedule", s.protect(s.regenerateScheduleHandler)).Methods("POST")
	router.HandleFunc("/loans/{id}/default", s.protect(s.markDefaultedHandler)).Methods("POST")

	router.HandleFunc("/installments/{id}", s.repaymentDetailsHandler).Methods("GET")
	router.HandleFunc("/installments/{id}/payments/preview", s.previewPaymentHandler).Methods("POST")
	router.HandleFunc("/installments/{id}/payments", s.protect(s.recordPaymentHandler)).Methods("POST")
	router.HandleFunc("/installments/{id}/receipt", s.protect(s.reprintReceiptHandler)).Methods("POST")

	router.HandleFunc("/bonuses", s.listBonusesHandler).Methods("GET")
	router.HandleFunc("/bonuses/recompute", s.protect(s.recomputeBonusesHandler)).Methods("POST")
	router.HandleFunc("/bonuses/{id}/approve", s.protect(s.approveBonusHandler)).Methods("POST")

	return router
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting SACCO loan service...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Loan settings", "interest_rate_percent", cfg.Loan.InterestRatePercent.String(), "term_months", cfg.Loan.TermMonths)

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()
	logger.Info("Database ready", "path", cfg.Database.Path)

	receiptOut := io.Writer(os.Stdout)
	if cfg.Receipt.OutputPath != "" {
		f, err := os.OpenFile(cfg.Receipt.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("Failed to open receipt output: %v", err)
		}
		defer f.Close()
		receiptOut = f
	}

	server := NewServer(cfg, sqliteStore, receiptOut)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(cfg.Scheduler, scheduler.NewJobRunner(server.bonuses))
		if err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		sched.Start()
		defer sched.Stop()
		logger.Info("Bonus recompute scheduled", "next", sched.Next())
	}

	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}
