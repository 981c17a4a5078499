package router

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tbeaudouin05/billing-reconciler/api/logging"
	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
)

const requestIDHeader = "X-Request-ID"

// withRequestContext attaches a request-scoped logger, echoes the request
// id, recovers panics and logs failed requests.
func withRequestContext(base zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, requestID := logging.WithRequestID(r.Context(), base, r.Header.Get(requestIDHeader))
		r = r.WithContext(ctx)
		logger := zerolog.Ctx(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		rw.Header().Set(requestIDHeader, requestID)
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				logger.Error().
					Interface("panic", p).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered in HTTP handler")
				writeError(rw, http.StatusInternalServerError, "internal server error")
			}
			ev := logger.Debug()
			if rw.statusCode >= 500 {
				ev = logger.Error()
			} else if rw.statusCode >= 400 {
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Dur("elapsed", time.Since(start)).
				Msg("request handled")
		}()

		next.ServeHTTP(rw, r)
	})
}

// instrument counts requests per registered route.
func (rt *router) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		}
		next(rw, r)
		rt.requests.WithLabelValues(pattern, r.Method, strconv.Itoa(rw.statusCode)).Inc()
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user billingdb.User)

// authenticated resolves the bearer token to a user before calling next.
func (rt *router) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authorized, no token provided")
			return
		}
		user, err := rt.identity.Authenticate(r.Context(), token)
		if err != nil {
			respondError(w, r, err)
			return
		}
		next(w, r, user)
	}
}

// premium admits users on a paid plan whose subscription is ACTIVE or TRIALING.
func (rt *router) premium(next func(w http.ResponseWriter, r *http.Request, sub billingdb.Subscription)) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, user billingdb.User) {
		sub, err := rt.billing.GetSubscription(r.Context(), user.ID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		switch {
		case sub.Status != billingdb.StatusActive && sub.Status != billingdb.StatusTrialing:
			writeError(w, http.StatusForbidden, "your subscription is not active, please renew")
			return
		case !sub.Plan.Paid():
			writeError(w, http.StatusForbidden, "upgrade to a paid plan to access this feature")
			return
		}
		next(w, r, sub)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
