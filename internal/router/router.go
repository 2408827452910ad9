package router

import (
	"net/http"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Wallet   *handler.WalletHandler
	Methods  *handler.WithdrawalMethodHandler
	Transfer *handler.TransferHandler
	Payroll  *handler.PayrollHandler
	Billing  *handler.BillingHandler
	Escrow   *handler.EscrowHandler
	Admin    *handler.AdminHandler
}

func SetupRoutes(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ============================================
		// WALLETS
		// ============================================
		r.Route("/wallet/{userId}", func(r chi.Router) {
			r.Get("/", h.Wallet.GetWallet)
			r.Get("/transactions", h.Wallet.ListTransactions)
			r.Patch("/auto-withdrawal", h.Wallet.UpdateAutoWithdrawal)
		})
		r.Post("/deposit", h.Wallet.Deposit)
		r.Post("/withdraw", h.Wallet.Withdraw)

		// ============================================
		// TRANSFERS & INVOICES
		// ============================================
		r.Post("/transfer", h.Transfer.Transfer)
		r.Get("/transfers/{referenceId}", h.Transfer.Settlement)
		r.Route("/invoices/{id}", func(r chi.Router) {
			r.Get("/", h.Transfer.GetInvoice)
			r.Get("/download", h.Transfer.DownloadInvoice)
		})
		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/invoices", h.Transfer.ListInvoices)
			r.Get("/tax-summary", h.Transfer.TaxSummary)
		})

		// ============================================
		// ESCROW
		// ============================================
		r.Route("/escrow", func(r chi.Router) {
			r.Post("/fund", h.Escrow.Fund)
			r.Get("/contracts/{contractId}", h.Escrow.ListByContract)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Escrow.GetHold)
				r.Post("/release", h.Escrow.Release)
				r.Post("/request-approval", h.Escrow.RequestApproval)
				r.Post("/approve", h.Escrow.Approve)
				r.Post("/split-release", h.Escrow.SplitRelease)
				r.Post("/refund", h.Escrow.Refund)
			})
		})

		// ============================================
		// TRANSACTIONS
		// ============================================
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/reference/{referenceId}", h.Wallet.TransactionsByReference)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Wallet.GetTransaction)
				r.Patch("/status", h.Wallet.UpdateTransactionStatus)
				r.Get("/invoice", h.Transfer.InvoiceData)
				r.Post("/chargeback", h.Billing.Chargeback)
				r.Post("/refund", h.Billing.Refund)
			})
		})

		// ============================================
		// WITHDRAWAL METHODS
		// ============================================
		r.Route("/withdrawal-methods", func(r chi.Router) {
			r.Post("/", h.Methods.Add)
			r.Get("/", h.Methods.List)
			r.Delete("/{id}", h.Methods.Delete)
			r.Patch("/{id}/default", h.Methods.SetDefault)
			r.Post("/{id}/verify-instant", h.Methods.VerifyInstant)
		})

		// ============================================
		// PAYROLL
		// ============================================
		r.Route("/payroll", func(r chi.Router) {
			r.Get("/preview", h.Payroll.Preview)
			r.Post("/process", h.Payroll.Process)
			r.Post("/contracts", h.Payroll.CreateContract)
			r.Get("/contracts/{id}/history", h.Payroll.History)
			r.Post("/benefits", h.Payroll.AddBenefit)
		})

		// ============================================
		// SUBSCRIPTIONS
		// ============================================
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", h.Billing.CreateSubscription)
			r.Get("/{userId}", h.Billing.ListSubscriptions)
			r.Post("/{id}/cancel", h.Billing.CancelSubscription)
		})

		// ============================================
		// AUDIT & ADMIN
		// ============================================
		r.Get("/audit/{id}/verify", h.Admin.VerifyRecord)
		r.Post("/audit/verify", h.Admin.VerifyEvent)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/fees/platform", h.Admin.GetPlatformFee)
			r.Put("/fees/platform", h.Admin.SetPlatformFee)
			r.Delete("/fees/platform", h.Admin.ClearPlatformFee)
			r.Get("/tax-rates/{jurisdiction}", h.Admin.GetTaxRate)
			r.Put("/tax-rates/{jurisdiction}", h.Admin.SetTaxRate)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}
