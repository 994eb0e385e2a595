package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thetact/tact-backend/internal/observability"
)

type stubVerifier map[string]*auth.Token

func (s stubVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if token, ok := s[idToken]; ok {
		return token, nil
	}
	return nil, errors.New("token rejected")
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestVerifyToken(t *testing.T) {
	verifier := stubVerifier{"good": {UID: "ov1", Claims: map[string]interface{}{"email": "ov1@example.com"}}}
	router := gin.New()
	router.GET("/me", NewAuthMiddleware(verifier, zap.NewNop()).VerifyToken(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": c.GetString(ContextUserID), "email": c.GetString(ContextUserEmail)})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"rejected token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "bearer good", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"uid":"ov1","email":"ov1@example.com"}`, w.Body.String())
			}
		})
	}
}

func TestRecoveryAndLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	router := gin.New()
	router.Use(RequestLogger(logger), RecoveryMiddleware(logger))
	router.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	requests := logs.FilterMessage("Incoming Request").All()
	if assert.Len(t, requests, 2) {
		assert.Equal(t, zapcore.ErrorLevel, requests[0].Level)
		assert.Equal(t, zapcore.InfoLevel, requests[1].Level)
		assert.Equal(t, "x=1", requests[1].ContextMap()["query"])
	}
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := gin.New()
	router.Use(MetricsMiddleware(metrics))
	router.GET("/orders/:reference/verify", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/ORD-1/verify", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/orders/:reference/verify", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware("https://app.example.com, https://admin.example.com"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
	generated := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "mobile-7f3a")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "mobile-7f3a", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "mobile-7f3a", w.Body.String())
}

func TestWebhookDeliveriesAreTraceable(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	router := gin.New()
	router.Use(RequestID(), RequestLogger(logger), RecoveryMiddleware(logger))
	router.POST("/paystack-webhook", func(c *gin.Context) {
		AnnotateWebhook(c, "paystack", "settled")
		c.Status(http.StatusOK)
	})
	router.POST("/stripe-webhook", func(c *gin.Context) {
		AnnotateWebhook(c, "stripe", "")
		panic("store exploded")
	})

	req := httptest.NewRequest(http.MethodPost, "/paystack-webhook", nil)
	req.Header.Set(RequestIDHeader, "delivery-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/stripe-webhook", nil)
	req.Header.Set(RequestIDHeader, "delivery-2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","details":"request_id=delivery-2"}`, w.Body.String())

	requests := logs.FilterMessage("Incoming Request").All()
	require.Len(t, requests, 2)
	first := requests[0].ContextMap()
	assert.Equal(t, "delivery-1", first["request_id"])
	assert.Equal(t, "paystack", first["webhook_provider"])
	assert.Equal(t, "settled", first["webhook_outcome"])

	panics := logs.FilterMessage("Panic recovered").All()
	require.Len(t, panics, 1)
	fields := panics[0].ContextMap()
	assert.Equal(t, "delivery-2", fields["request_id"])
	assert.Equal(t, "stripe", fields["webhook_provider"])
	assert.Equal(t, "/stripe-webhook", fields["route"])
}
