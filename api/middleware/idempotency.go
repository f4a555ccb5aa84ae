package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/mycoshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxKeyLength      = 255

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = time.Minute
)

// ReplayStore keeps idempotency records in Redis.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type idempotencyRule struct {
	method   string
	match    func(pattern string) bool
	ttl      time.Duration
	required bool
}

// Money-moving routes keep their records for a week; creating an order
// refuses to run without a key.
var idempotencyRules = []idempotencyRule{
	{http.MethodPost, exactly("/api/orders"), criticalIdempotencyTTL, true},
	{http.MethodPost, exactly("/api/payments/card/process"), criticalIdempotencyTTL, false},
	{http.MethodPost, between("/api/payments/", "/execute"), criticalIdempotencyTTL, false},
	{http.MethodPost, between("/api/payments/", "/create"), defaultIdempotencyTTL, false},
	{http.MethodPost, exactly("/api/cart/add"), defaultIdempotencyTTL, false},
}

func exactly(path string) func(string) bool {
	return func(pattern string) bool { return pattern == path }
}

func between(prefix, suffix string) func(string) bool {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, prefix) && strings.HasSuffix(pattern, suffix)
	}
}

func matchRule(method, pattern string) (idempotencyRule, bool) {
	if pattern == "" {
		return idempotencyRule{}, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.match(pattern) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

// replayRecord is what Redis holds under a key. A record without Status
// belongs to a request that is still running.
type replayRecord struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (r replayRecord) done() bool { return r.Status != 0 }

// Idempotency replays the stored response for a repeated Idempotency-Key.
// The key is claimed before the handler runs so concurrent duplicates get
// a 409 instead of a second order. Keys are scoped by session, method and
// path. Only 2xx/3xx responses are kept; a failed attempt frees the key.
func Idempotency(store ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "" && rule.required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"header": idempotencyHeader}))
				return
			case clientKey == "":
				next.ServeHTTP(w, r)
				return
			case len(clientKey) > maxKeyLength:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			claim := replayRecord{RequestHash: hex.EncodeToString(sum[:])}
			key := store.IdempotencyKey(replayScope(r), clientKey)

			replayed, err := claimKey(ctx, store, key, claim, w)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if replayed {
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.statusCode() >= http.StatusBadRequest {
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			claim.Status = capture.statusCode()
			claim.ContentType = capture.Header().Get("Content-Type")
			claim.Body = capture.body.Bytes()
			if err := saveRecord(context.WithoutCancel(ctx), store, key, claim, rule.ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

// claimKey either reserves key for this request or answers from the
// existing record, reporting whether a stored response was written.
func claimKey(ctx context.Context, store ReplayStore, key string, claim replayRecord, w http.ResponseWriter) (bool, error) {
	pending, _ := json.Marshal(claim)
	won, err := store.SetNX(ctx, key, string(pending), inFlightTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "claim idempotency key")
	}
	if won {
		return false, nil
	}

	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress")
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "read idempotency record")
	}
	var stored replayRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record")
	}

	switch {
	case stored.RequestHash != claim.RequestHash:
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	case !stored.done():
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress")
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	return true, nil
}

func saveRecord(ctx context.Context, store ReplayStore, key string, record replayRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload), ttl)
}

func replayScope(r *http.Request) string {
	return strings.Join([]string{SessionIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

// routePattern prefers chi's matched pattern. Middleware mounted with Use
// on a subrouter only sees a partial pattern ("/api/*"), so fall back to
// the raw path then.
// routePattern names the route for rule matching and key scoping. A
// trailing slash is dropped since chi serves "/api/orders/" from the
// same handler as "/api/orders".
func routePattern(r *http.Request) string {
	pattern := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.HasSuffix(p, "*") {
			pattern = p
		}
	}
	if len(pattern) > 1 {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	return pattern
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
