package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Anthobetto/UNMI-sub001/internal/platform/auth"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
	maxBodyBytes      = 1 << 20
)

// Logger receives structured events about store failures.
type Logger func(ctx context.Context, event string, fields map[string]any)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	clock      func() time.Time
	logger     Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed responses are replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithLogger injects the event logger.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware requires an idempotency key on every request it wraps and replays the first
// completed response for repeated keys. Responses with a 5xx status are not kept, so the
// client can retry with the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		clock:      time.Now,
		logger:     func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = func(context.Context, string, map[string]any) {}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				writeError(ctx, w, http.StatusBadRequest, "idempotency_key_required", "missing "+cfg.headerName+" header")
				return
			}
			if !validKey(key) {
				writeError(ctx, w, http.StatusBadRequest, "idempotency_key_invalid", cfg.headerName+" must be 1-255 printable ASCII characters")
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				writeError(ctx, w, http.StatusRequestEntityTooLarge, "request_body_unreadable", "unable to read request body")
				return
			}

			requester := requesterID(ctx)
			claim := Claim{
				Key:         requester + "|" + key,
				Fingerprint: fingerprint(r, body, requester),
				Now:         cfg.clock(),
				TTL:         cfg.ttl,
			}

			reservation, err := store.Acquire(ctx, claim)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				writeError(ctx, w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
				return
			case err != nil:
				cfg.logger(ctx, "idempotency.acquire_failed", map[string]any{"error": err.Error()})
				writeError(ctx, w, http.StatusServiceUnavailable, "idempotency_unavailable", "unable to process idempotency key")
				return
			}

			switch reservation.Outcome {
			case OutcomeReplay:
				replay(w, reservation.Entry)
				return
			case OutcomeInFlight:
				writeError(ctx, w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
				return
			}

			rec := &capture{header: make(http.Header)}
			next.ServeHTTP(rec, r)
			resp := rec.response()

			// Store bookkeeping must finish even when the client has gone away.
			storeCtx := context.WithoutCancel(ctx)
			claim.Now = cfg.clock()
			if resp.Status >= http.StatusInternalServerError {
				if err := store.Release(storeCtx, claim); err != nil {
					cfg.logger(ctx, "idempotency.release_failed", map[string]any{"error": err.Error(), "status": resp.Status})
				}
			} else if err := store.Complete(storeCtx, claim, resp); err != nil {
				cfg.logger(ctx, "idempotency.complete_failed", map[string]any{"error": err.Error(), "status": resp.Status})
				if err := store.Release(storeCtx, claim); err != nil {
					cfg.logger(ctx, "idempotency.release_failed", map[string]any{"error": err.Error(), "status": resp.Status})
				}
				writeError(ctx, w, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
				return
			}

			writeResponse(w, resp.Header, resp.Status, resp.Body)
		})
	}
}

func validKey(key string) bool {
	if len(key) > maxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("idempotency: request body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprint(r *http.Request, body []byte, requester string) string {
	parts := []string{
		r.Method,
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		requester,
		hashBytes(body),
	}
	return hashBytes([]byte(strings.Join(parts, "\n")))
}

func requesterID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, entry Entry) {
	header := make(http.Header, len(entry.ResponseHeader))
	for name, values := range entry.ResponseHeader {
		header[name] = append([]string(nil), values...)
	}
	header.Set(replayHeaderName, "true")
	writeResponse(w, header, entry.ResponseStatus, entry.ResponseBody)
}

func writeResponse(w http.ResponseWriter, header http.Header, status int, body []byte) {
	dst := w.Header()
	for name, values := range header {
		dst[name] = append([]string(nil), values...)
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// capture buffers the downstream response until the store has recorded it.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capture) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *capture) response() Response {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return Response{Status: status, Header: c.header.Clone(), Body: append([]byte(nil), c.body.Bytes()...)}
}
