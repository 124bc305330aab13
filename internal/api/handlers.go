package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"company-lookup/internal/backend"
	"company-lookup/internal/cache"
	"company-lookup/internal/health"
	"company-lookup/internal/history"
	"company-lookup/internal/logs"
	"company-lookup/internal/lookup"
	"company-lookup/internal/metrics"
	"company-lookup/internal/model"
	"company-lookup/internal/store"
)

const maxUploadBytes = 20 << 20

// Reports is the document and email side of the backend.
type Reports interface {
	CompanyPDF(ctx context.Context, cui string, years int) ([]byte, error)
	ProcessAndGeneratePDF(ctx context.Context, cui string, years int) ([]byte, error)
	VerifyPDF(ctx context.Context, filename string, pdf io.Reader) (string, error)
	SendReport(ctx context.Context, email, cui string, years int) (string, error)
	RequestEmailVerification(ctx context.Context, cui string, years int) (model.EmailVerification, error)
	SendVerifiedEmail(ctx context.Context, sessionID string) (map[string]string, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	lookup   *lookup.Service
	reports  Reports
	cache    *cache.ResultCache
	history  *history.History
	metrics  *metrics.Registry
	analyzer *health.Analyzer
	logger   *logs.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	svc *lookup.Service,
	reports Reports,
	c *cache.ResultCache,
	h *history.History,
	reg *metrics.Registry,
	logger *logs.Logger,
) *Handler {
	if logger == nil {
		logger = logs.Nop()
	}
	return &Handler{
		lookup:   svc,
		reports:  reports,
		cache:    c,
		history:  h,
		metrics:  reg,
		analyzer: health.NewAnalyzer(reg, logger),
		logger:   logger,
	}
}

/* ---------------- helpers ---------------- */

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err to a status code. Backend client errors keep their
// status; backend server errors become 502.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var se *backend.StatusError
	switch {
	case errors.Is(err, lookup.ErrInvalidIdentifier), errors.Is(err, lookup.ErrInvalidYears):
		status = http.StatusBadRequest
	case errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500:
		status = se.StatusCode
	case errors.As(err, &se):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// params reads the {cui} path value and the years query parameter.
func params(r *http.Request) (string, int, error) {
	cui, err := lookup.NormalizeIdentifier(r.PathValue("cui"))
	if err != nil {
		return "", 0, err
	}

	years := lookup.DefaultYears
	if raw := r.URL.Query().Get("years"); raw != "" {
		years, err = strconv.Atoi(raw)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %q", lookup.ErrInvalidYears, raw)
		}
	}
	if err := lookup.ValidateYears(years); err != nil {
		return "", 0, err
	}
	return cui, years, nil
}

func boolQuery(r *http.Request, name string, def bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

/* ---------------- GET /companies/{cui} ---------------- */

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	cui, years, err := params(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.lookup.Search(r.Context(), cui, years, boolQuery(r, "cache", true))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

/* ---------------- POST /companies/{cui}/refresh ---------------- */

func (h *Handler) RefreshCompany(w http.ResponseWriter, r *http.Request) {
	cui, years, err := params(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.lookup.Refresh(r.Context(), cui, years)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

/* ---------------- POST /companies/{cui}/update ---------------- */

func (h *Handler) UpdateFinancialRecords(w http.ResponseWriter, r *http.Request) {
	cui, years, err := params(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.lookup.UpdateFinancialRecords(r.Context(), cui, years)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

/* ---------------- GET /companies/{cui}/pdf ---------------- */

func (h *Handler) GetCompanyPDF(w http.ResponseWriter, r *http.Request) {
	cui, years, err := params(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var pdf []byte
	if boolQuery(r, "process", false) {
		pdf, err = h.reports.ProcessAndGeneratePDF(r.Context(), cui, years)
	} else {
		pdf, err = h.reports.CompanyPDF(r.Context(), cui, years)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="raport_%s.pdf"`, cui))
	_, _ = w.Write(pdf)
}

/* ---------------- POST /pdf/verify ---------------- */

func (h *Handler) VerifyPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file upload"})
		return
	}
	defer file.Close()

	checksum, err := h.reports.VerifyPDF(r.Context(), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checksum": checksum})
}

/* ---------------- POST /companies/{cui}/email ---------------- */

func (h *Handler) SendReport(w http.ResponseWriter, r *http.Request) {
	cui, years, err := params(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing email"})
		return
	}

	msg, err := h.reports.SendReport(r.Context(), email, cui, years)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

/* ---------------- POST /companies/{cui}/email/verification ---------------- */

func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	cui, years, err := params(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	v, err := h.reports.RequestEmailVerification(r.Context(), cui, years)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

/* ---------------- POST /email/verified ---------------- */

func (h *Handler) SendVerifiedEmail(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing sessionId"})
		return
	}

	out, err := h.reports.SendVerifiedEmail(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

/* ---------------- GET /history ---------------- */

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.history.List()
	if err != nil {
		h.logger.Warn().Err(err).Msg("search history unreadable")
	}
	writeJSON(w, http.StatusOK, map[string][]string{"items": items})
}

/* ---------------- DELETE /history/{cui} ---------------- */

func (h *Handler) RemoveHistory(w http.ResponseWriter, r *http.Request) {
	cui, err := lookup.NormalizeIdentifier(r.PathValue("cui"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.history.Remove(cui); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ---------------- DELETE /history ---------------- */

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Clear(); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ---------------- GET /cache/stats ---------------- */

type statsResponse struct {
	cache.Stats
	Size string `json:"size"`
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats()
	if err != nil {
		h.logger.Warn().Err(err).Msg("cache stats unavailable")
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats, Size: stats.SizeLabel()})
}

/* ---------------- DELETE /cache ---------------- */

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.ClearAll()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

/* ---------------- DELETE /cache/{cui} ---------------- */

// ClearCompany drops one (cui, years) entry when years is given, or every
// entry of the company otherwise.
func (h *Handler) ClearCompany(w http.ResponseWriter, r *http.Request) {
	cui, err := lookup.NormalizeIdentifier(r.PathValue("cui"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("years") == "" {
		removed, err := h.cache.ClearIdentifier(cui)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
		return
	}

	_, years, err := params(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.cache.Clear(cui, years); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ---------------- POST /cache/sweep ---------------- */

func (h *Handler) SweepCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.SweepExpired()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

/* ---------------- GET /metrics ---------------- */

func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

/* ---------------- GET /health ---------------- */

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.Analyze())
}
