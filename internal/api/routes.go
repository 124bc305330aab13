package api

import (
	"net/http"

	"company-lookup/internal/logs"
)

func RegisterRoutes(mux *http.ServeMux, h *Handler, logger *logs.Logger) http.Handler {
	// Lookups
	mux.HandleFunc("GET /companies/{cui}", h.GetCompany)
	mux.HandleFunc("POST /companies/{cui}/refresh", h.RefreshCompany)
	mux.HandleFunc("POST /companies/{cui}/update", h.UpdateFinancialRecords)

	// Reports
	mux.HandleFunc("GET /companies/{cui}/pdf", h.GetCompanyPDF)
	mux.HandleFunc("POST /pdf/verify", h.VerifyPDF)
	mux.HandleFunc("POST /companies/{cui}/email", h.SendReport)
	mux.HandleFunc("POST /companies/{cui}/email/verification", h.RequestEmailVerification)
	mux.HandleFunc("POST /email/verified", h.SendVerifiedEmail)

	// Search history
	mux.HandleFunc("GET /history", h.ListHistory)
	mux.HandleFunc("DELETE /history", h.ClearHistory)
	mux.HandleFunc("DELETE /history/{cui}", h.RemoveHistory)

	// Cache admin
	mux.HandleFunc("GET /cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /cache", h.ClearCache)
	mux.HandleFunc("DELETE /cache/{cui}", h.ClearCompany)
	mux.HandleFunc("POST /cache/sweep", h.SweepCache)

	// Observability APIs
	mux.HandleFunc("GET /metrics", h.GetMetrics)
	mux.HandleFunc("GET /health", h.GetHealth)

	// Middlewares
	return Chain(
		mux,
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	)
}
