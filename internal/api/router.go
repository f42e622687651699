package api

import (
	"net/http"

	"github.com/bmptec/ledger-core/internal/api/handler"
	"github.com/bmptec/ledger-core/internal/api/middleware"
	"github.com/bmptec/ledger-core/internal/config"
	"github.com/bmptec/ledger-core/internal/idempotency"
	"github.com/bmptec/ledger-core/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the core operations the HTTP adapter exposes.
type Services struct {
	Accounts   *service.AccountService
	Transfers  *service.TransferService
	Statements *service.StatementService
	Calendar   handler.HolidayLister
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	health    *handler.HealthHandler
	idemStore *idempotency.Store
	svc       Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, health *handler.HealthHandler, idemStore *idempotency.Store, svc Services) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, health: health, idemStore: idemStore, svc: svc}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	if api.health != nil {
		r.Get("/health/live", api.health.Live)
		r.Get("/health/ready", api.health.Ready)
	}
	r.Handle("/metrics", promhttp.Handler())

	accountHandler := handler.NewAccountHandler(api.svc.Accounts)
	transferHandler := handler.NewTransferHandler(api.svc.Transfers)
	statementHandler := handler.NewStatementHandler(api.svc.Statements, api.cfg.Location)
	holidayHandler := handler.NewHolidayHandler(api.svc.Calendar)

	idempotent := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(api.cfg.PublicRateLimitRPS))

		r.Post("/accounts", accountHandler.CreateAccount)
		r.Route("/accounts/{account_id}", func(r chi.Router) {
			r.Get("/", accountHandler.GetAccount)
			r.Post("/close", accountHandler.CloseAccount)
			r.Post("/block", accountHandler.BlockAccount)
			r.Post("/unblock", accountHandler.UnblockAccount)
			r.Get("/statement", statementHandler.GetStatement)
			r.Get("/statement.txt", statementHandler.DownloadStatement)
		})
		r.Get("/clients/{client_id}/accounts", accountHandler.ListClientAccounts)

		r.With(idempotent).Post("/transfers", transferHandler.Transfer)
		r.With(idempotent).Post("/deposits", transferHandler.Deposit)
		r.Get("/movements", transferHandler.ListMovements)
		r.Get("/movements/{movement_id}", transferHandler.GetMovement)

		r.Get("/holidays", holidayHandler.ListHolidays)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "request/not-found", "route not found")
	})
	return r
}
