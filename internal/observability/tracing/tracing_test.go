package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsFreeText(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/documents/:id"),
		attribute.String("remarks", "vendor refused"),
		attribute.String("actor_id", "u-1"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(fmt.Errorf("insert document: %w", errors.New("duplicate key value")))
	assert.EqualError(t, err, "insert document")
}

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(nil, Config{ServiceName: "pipetrade"}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, provider)
}

func TestGinMiddlewareRecordsDocumentSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	r := gin.New()
	r.Use(ginMiddleware(func() trace.Tracer { return provider.Tracer(tracerName) }))
	r.POST("/api/documents/:id/transitions", func(c *gin.Context) {
		c.Set("document_type", "INVOICE")
		_ = c.Error(fmt.Errorf("allocation_failed: %w", errors.New("counter row locked")))
		c.Status(http.StatusServiceUnavailable)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/documents/77/transitions", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "HTTP POST /api/documents/:id/transitions", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "77", attrs["document.id"].AsString())
	assert.Equal(t, "INVOICE", attrs["document.type"].AsString())
	assert.Equal(t, int64(503), attrs[semconv.HTTPResponseStatusCodeKey].AsInt64())

	require.Len(t, span.Events(), 1)
	for _, kv := range span.Events()[0].Attributes {
		if kv.Key == "exception.message" {
			assert.Equal(t, "allocation_failed", kv.Value.AsString())
		}
	}
}
