package otel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestEndpointExcluder(t *testing.T) {
	t.Parallel()

	sampler := newEndpointExcluder(map[string]struct{}{"/v1/health": {}}, 1.0)
	traceID := trace.TraceID{1}

	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  sdktrace.SamplingDecision
	}{
		{
			name:  "excluded route dropped",
			attrs: []attribute.KeyValue{attribute.String("http.route", "/v1/health")},
			want:  sdktrace.Drop,
		},
		{
			name:  "excluded path dropped",
			attrs: []attribute.KeyValue{attribute.String("url.path", "/v1/health")},
			want:  sdktrace.Drop,
		},
		{
			name:  "other route sampled",
			attrs: []attribute.KeyValue{attribute.String("http.route", "/v1/tasks")},
			want:  sdktrace.RecordAndSample,
		},
		{
			name: "no attributes sampled",
			want: sdktrace.RecordAndSample,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := sampler.ShouldSample(sdktrace.SamplingParameters{
				TraceID:    traceID,
				Name:       "span",
				Attributes: tt.attrs,
			})
			assert.Equal(t, tt.want, res.Decision)
		})
	}
}
