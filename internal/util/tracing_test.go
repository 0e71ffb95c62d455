package util

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanConcurrentFirstUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, span := StartSpan(context.Background(), "concurrent")
			assert.NotNil(t, span)
			span.End()
		}()
	}
	wg.Wait()
	assert.Equal(t, GetTracer(), GetTracer())
}

func TestStartSpanFollowsInstalledProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := StartSpan(context.Background(), "EnrollmentService.VerifyPayment")
	FailSpan(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "EnrollmentService.VerifyPayment", ended[0].Name())
	assert.Equal(t, "boom", ended[0].Status().Description)
}
