package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	maxBody           = 1 << 20
	maxDetail         = 200
	defaultRetryAfter = time.Minute
)

// transport agrupa cliente HTTP, limiter saliente e instrumentación.
type transport struct {
	platform social.Platform
	http     *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
}

func newTransport(p social.Platform, opts Options) *transport {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	var lim *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &transport{platform: p, http: hc, limiter: lim, now: now}
}

// response es el resultado crudo de una llamada.
type response struct {
	status int
	header http.Header
	body   []byte
}

// do ejecuta req respetando el limiter. Errores de transporte ya salen tipados.
func (t *transport) do(ctx context.Context, op string, req *http.Request) (*response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, social.FromContext(ctx, op, t.platform, ctx.Err())
			}
			// el limiter falla antes del deadline si la espera no entra
			return nil, social.Wrap(social.KindTimeout, op, t.platform, context.DeadlineExceeded)
		}
	}
	start := t.now()
	resp, err := t.http.Do(req)
	if err != nil {
		e := social.FromContext(ctx, op, t.platform, err)
		t.observe(op, string(e.Kind), start)
		return nil, e
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		e := social.FromContext(ctx, op, t.platform, err)
		t.observe(op, string(e.Kind), start)
		return nil, e
	}
	outcome := "ok"
	if resp.StatusCode >= 300 {
		outcome = strconv.Itoa(resp.StatusCode)
	}
	t.observe(op, outcome, start)
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (t *transport) observe(op, outcome string, start time.Time) {
	metrics.ProviderRequests.WithLabelValues(string(t.platform), op, outcome).Observe(time.Since(start).Seconds())
}

// getJSON hace GET autenticado con bearer y decodifica en out. Status != 2xx se
// clasifica con classify (o classifyResource si classify devuelve nil).
func (t *transport) getJSON(ctx context.Context, op, rawURL, bearer string, out any, classify func(*response) *social.Error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return social.E(social.KindConfiguration, op, t.platform, "invalid api url")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := t.do(ctx, op, req)
	if err != nil {
		return err
	}
	if classify != nil {
		if e := classify(res); e != nil {
			return e
		}
	}
	if res.status < 200 || res.status > 299 {
		return t.classifyResource(op, res)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return social.E(social.KindNetwork, op, t.platform, "malformed response body")
	}
	return nil
}

// classifyResource mapea status de APIs de recursos (no token endpoint).
func (t *transport) classifyResource(op string, res *response) *social.Error {
	switch {
	case res.status == http.StatusUnauthorized:
		return social.E(social.KindInvalidGrant, op, t.platform, "access token rejected")
	case res.status == http.StatusForbidden:
		return social.E(social.KindInvalidGrant, op, t.platform, "access token lacks permission")
	case res.status == http.StatusNotFound:
		return social.E(social.KindNotFound, op, t.platform, "resource not found")
	case res.status == http.StatusTooManyRequests:
		return social.RateLimited(op, t.platform, t.retryAfter(res.header))
	default:
		return social.E(social.KindNetwork, op, t.platform, fmt.Sprintf("unexpected upstream status %d", res.status))
	}
}

// retryAfter lee Retry-After (segundos o fecha HTTP) o x-rate-limit-reset (epoch).
func (t *transport) retryAfter(h http.Header) time.Duration {
	now := t.now()
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if v := strings.TrimSpace(h.Get("X-Rate-Limit-Reset")); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d.Round(time.Second)
			}
			return 0
		}
	}
	return defaultRetryAfter
}

// providerError es el payload de error OAuth (RFC 6749) o de Graph API.
type providerError struct {
	Code        string
	Description string
	GraphCode   int
	GraphSub    int
}

// parseProviderError soporta {"error":"x","error_description":"y"},
// {"error":{"message":..,"code":..}} y {"error_type":..,"error_message":..}.
func parseProviderError(body []byte) providerError {
	var raw struct {
		Error        json.RawMessage `json:"error"`
		Description  string          `json:"error_description"`
		ErrorType    string          `json:"error_type"`
		ErrorMessage string          `json:"error_message"`
	}
	var pe providerError
	if err := json.Unmarshal(body, &raw); err != nil {
		return pe
	}
	pe.Description = raw.Description
	if len(raw.Error) > 0 {
		var s string
		if json.Unmarshal(raw.Error, &s) == nil {
			pe.Code = s
		} else {
			var obj struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    int    `json:"code"`
				Subcode int    `json:"error_subcode"`
			}
			if json.Unmarshal(raw.Error, &obj) == nil {
				pe.Code = obj.Type
				pe.Description = obj.Message
				pe.GraphCode = obj.Code
				pe.GraphSub = obj.Subcode
			}
		}
	}
	if pe.Code == "" && raw.ErrorType != "" {
		pe.Code = raw.ErrorType
		pe.Description = raw.ErrorMessage
	}
	return pe
}

// sanitized arma un detail apto para logs: status, código y descripción truncada.
func (pe providerError) sanitized(status int) string {
	parts := []string{"status " + strconv.Itoa(status)}
	if pe.Code != "" {
		parts = append(parts, truncate(pe.Code, 64))
	}
	if pe.Description != "" {
		parts = append(parts, truncate(pe.Description, maxDetail))
	}
	return strings.Join(parts, ": ")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
