package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// endpointExcluder drops spans for noisy routes such as health probes and
// delegates everything else to a ratio based sampler.
type endpointExcluder struct {
	endpoints   map[string]struct{}
	probability float64
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	return endpointExcluder{endpoints: endpoints, probability: probability}
}

// ShouldSample implements the sampler interface.
func (ee endpointExcluder) ShouldSample(parameters sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range parameters.Attributes {
		if attr.Key != semconv.URLPathKey && attr.Key != semconv.HTTPRouteKey {
			continue
		}
		if _, exists := ee.endpoints[attr.Value.AsString()]; exists {
			return sdktrace.SamplingResult{Decision: sdktrace.Drop}
		}
	}

	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ee.probability)).ShouldSample(parameters)
}

// Description implements the sampler interface.
func (endpointExcluder) Description() string {
	return "customSampler"
}
