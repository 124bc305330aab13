// Package backend is a thin HTTP client for the remote company API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"company-lookup/internal/logs"
	"company-lookup/internal/metrics"
	"company-lookup/internal/model"
)

const maxErrorBody = 4 << 10

// Client calls the remote backend API.
type Client struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	metrics *metrics.Registry
	logger  *logs.Logger
	now     func() time.Time
}

// NewClient creates a Client.
func NewClient(cfg Config, reg *metrics.Registry, logger *logs.Logger) *Client {
	if logger == nil {
		logger = logs.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   cfg.Retry,
		metrics: reg,
		logger:  logger,
		now:     time.Now,
	}
}

// Company fetches company metadata.
// GET /api/firma/{cui}
func (c *Client) Company(ctx context.Context, cui string) (model.Company, error) {
	var company model.Company
	err := c.getJSON(ctx, "/api/firma/"+url.PathEscape(cui), nil, &company)
	return company, err
}

// FinancialRecords fetches the yearly records for the last years years.
// A cache-busting _t parameter is added so intermediaries never serve a
// stale period.
// GET /api/bilant/{cui}/period?years=N
func (c *Client) FinancialRecords(ctx context.Context, cui string, years int) ([]model.FinancialRecord, error) {
	q := url.Values{}
	q.Set("years", strconv.Itoa(years))
	q.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))

	records := []model.FinancialRecord{}
	err := c.getJSON(ctx, "/api/bilant/"+url.PathEscape(cui)+"/period", q, &records)
	return records, err
}

// ProcessCompany asks the backend to (re)import the company and its
// records from the public registry.
// POST /api/firma/{cui}/process?years=N
func (c *Client) ProcessCompany(ctx context.Context, cui string, years int) (model.Company, error) {
	var company model.Company
	err := c.postJSON(ctx, "/api/firma/"+url.PathEscape(cui)+"/process", yearsQuery(years), &company)
	return company, err
}

// CompanyPDF downloads the company report.
// GET /api/pdf/company/{cui}?years=N
func (c *Client) CompanyPDF(ctx context.Context, cui string, years int) ([]byte, error) {
	var pdf []byte
	err := Retry(ctx, c.retry, func() error {
		var err error
		pdf, err = c.do(ctx, http.MethodGet, "/api/pdf/company/"+url.PathEscape(cui), yearsQuery(years), nil, "")
		return err
	}, c.onRetry)
	return pdf, err
}

// ProcessAndGeneratePDF refreshes the company data then returns a report.
// POST /api/pdf/company/{cui}/process-and-generate?years=N
func (c *Client) ProcessAndGeneratePDF(ctx context.Context, cui string, years int) ([]byte, error) {
	return c.doOnce(ctx, http.MethodPost, "/api/pdf/company/"+url.PathEscape(cui)+"/process-and-generate", yearsQuery(years), nil, "")
}

// VerifyPDF uploads a report for signature verification and returns the
// content checksum reported by the backend.
// POST /api/pdf/verify (multipart field "file")
func (c *Client) VerifyPDF(ctx context.Context, filename string, pdf io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	raw, err := c.doOnce(ctx, http.MethodPost, "/api/pdf/verify", nil, &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var resp model.APIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	return resp.Data, nil
}

// SendReport emails the company report to email.
// POST /api/email/send-report?email=&cui=&years=
func (c *Client) SendReport(ctx context.Context, email, cui string, years int) (string, error) {
	q := yearsQuery(years)
	q.Set("email", email)
	q.Set("cui", cui)

	raw, err := c.doOnce(ctx, http.MethodPost, "/api/email/send-report", q, nil, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// RequestEmailVerification starts an OAuth-gated email session.
// POST /api/email/request-verification?cui=&years=
func (c *Client) RequestEmailVerification(ctx context.Context, cui string, years int) (model.EmailVerification, error) {
	q := yearsQuery(years)
	q.Set("cui", cui)

	var v model.EmailVerification
	err := c.postJSON(ctx, "/api/email/request-verification", q, &v)
	return v, err
}

// SendVerifiedEmail sends the report once the session was verified.
// POST /api/email/send-verified?sessionId=
func (c *Client) SendVerifiedEmail(ctx context.Context, sessionID string) (map[string]string, error) {
	q := url.Values{}
	q.Set("sessionId", sessionID)

	out := map[string]string{}
	err := c.postJSON(ctx, "/api/email/send-verified", q, &out)
	return out, err
}

/* ---------------- plumbing ---------------- */

func yearsQuery(years int) url.Values {
	q := url.Values{}
	q.Set("years", strconv.Itoa(years))
	return q
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	return Retry(ctx, c.retry, func() error {
		raw, err := c.do(ctx, http.MethodGet, path, q, nil, "")
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}, c.onRetry)
}

func (c *Client) postJSON(ctx context.Context, path string, q url.Values, out any) error {
	raw, err := c.doOnce(ctx, http.MethodPost, path, q, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// doOnce performs a non-idempotent request without retries.
func (c *Client) doOnce(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string) ([]byte, error) {
	raw, err := c.do(ctx, method, path, q, body, contentType)
	var perm *permanentError
	if errors.As(err, &perm) {
		return nil, perm.err
	}
	return raw, err
}

// do performs one attempt. Errors that should not be retried are wrapped
// with Permanent.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string) ([]byte, error) {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, Permanent(fmt.Errorf("build request %s %s: %w", method, path, err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, application/pdf, text/plain")

	c.metrics.Inc(metrics.BackendRequestsTotal)
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.Inc(metrics.BackendFailuresTotal)
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("backend request failed")
		if ctx.Err() != nil {
			return nil, Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.Inc(metrics.BackendFailuresTotal)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    errorMessage(raw),
		}
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Msg("backend request failed")
		if retryable(resp.StatusCode) {
			return nil, se
		}
		return nil, Permanent(se)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.Inc(metrics.BackendFailuresTotal)
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend request")
	return raw, nil
}

func (c *Client) onRetry(attempt int, err error) {
	c.metrics.Inc(metrics.BackendRetriesTotal)
	c.logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying backend request")
}
