package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "debug")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Post("/api/v1/orders/{orderID}/fulfillment", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/o-7/fulfillment", nil)
	req.Header.Set("Idempotency-Key", "k-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "o-7", entry["order_id"])
	require.Equal(t, "k-1", entry["idempotency_key"])
	require.Equal(t, float64(http.StatusConflict), entry["status"])
	require.NotEmpty(t, entry["request_id"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "loud")
	logger.Debug().Msg("hidden")
	require.Zero(t, buf.Len())
	logger.Info().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestSQLOperation(t *testing.T) {
	require.Equal(t, "UPDATE", sqlOperation("  update stock_batches set quantity_available = 1"))
	require.Equal(t, "query", sqlOperation("   "))
	long := bytes.Repeat([]byte("x"), maxStatementLen+10)
	require.Len(t, truncateSQL(string(long)), maxStatementLen+3)
}
