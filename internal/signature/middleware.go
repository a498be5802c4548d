package signature

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// MaxBodyBytes caps the body size read for verification.
const MaxBodyBytes = 1 << 20

// Middleware verifies the raw request body against the signature in header
// and restores the body for the next handler. Unverified requests get 401.
type Middleware struct {
	Header string
	Secret string
	// AllowUnsigned skips verification when Secret is empty.
	AllowUnsigned bool
	Logger        *otelzap.Logger
}

// Wrap returns next guarded by signature verification.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			m.Logger.Ctx(r.Context()).Warn("Failed to read webhook body", zap.Error(err))
			writeUnauthorized(w)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if m.Secret == "" && m.AllowUnsigned {
			m.Logger.Ctx(r.Context()).Warn("Webhook secret not configured, skipping signature check",
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
			return
		}

		if !Verify(body, r.Header.Get(m.Header), m.Secret) {
			m.Logger.Ctx(r.Context()).Warn("Webhook signature rejected",
				zap.String("path", r.URL.Path),
				zap.String("header", m.Header),
			)
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
