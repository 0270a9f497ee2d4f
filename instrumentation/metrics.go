package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments recorded by the protocol handlers.
type Metrics struct {
	// Handler metrics
	HandlerRequestsTotal   metric.Int64Counter
	HandlerRequestDuration metric.Float64Histogram

	// Flow metrics
	TokensIssued             metric.Int64Counter
	AuthorizationCodesIssued metric.Int64Counter
	TokensRevoked            metric.Int64Counter
	AuthenticationsTotal     metric.Int64Counter

	// Error metrics
	ErrorsTotal metric.Int64Counter
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	meter := inst.Meter("oauth")
	m := &Metrics{}

	var err error
	m.HandlerRequestsTotal, err = meter.Int64Counter(
		"oauth.handler.requests.total",
		metric.WithDescription("Total number of handler invocations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler.requests.total counter: %w", err)
	}

	m.HandlerRequestDuration, err = meter.Float64Histogram(
		"oauth.handler.request.duration",
		metric.WithDescription("Handler duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler.request.duration histogram: %w", err)
	}

	m.TokensIssued, err = meter.Int64Counter(
		"oauth.tokens.issued",
		metric.WithDescription("Number of tokens issued by the token endpoint"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.AuthorizationCodesIssued, err = meter.Int64Counter(
		"oauth.authorization_codes.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization_codes.issued counter: %w", err)
	}

	m.TokensRevoked, err = meter.Int64Counter(
		"oauth.tokens.revoked",
		metric.WithDescription("Number of revocation requests processed"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.revoked counter: %w", err)
	}

	m.AuthenticationsTotal, err = meter.Int64Counter(
		"oauth.authentications.total",
		metric.WithDescription("Number of bearer token authentications"),
		metric.WithUnit("{authentication}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentications.total counter: %w", err)
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"oauth.errors.total",
		metric.WithDescription("Number of protocol errors returned"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create errors.total counter: %w", err)
	}

	return m, nil
}

// RecordHandlerRequest records one handler invocation and its duration.
func (m *Metrics) RecordHandlerRequest(ctx context.Context, handler string, durationMillis float64, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHandler, handler),
		attribute.Bool("success", success),
	)
	m.HandlerRequestsTotal.Add(ctx, 1, attrs)
	m.HandlerRequestDuration.Record(ctx, durationMillis,
		metric.WithAttributes(attribute.String(AttrHandler, handler)))
}

// RecordTokenIssued records a successful token grant.
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string) {
	if m == nil {
		return
	}
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrGrantType, grantType)))
}

// RecordAuthorizationCodeIssued records a successful authorize flow.
func (m *Metrics) RecordAuthorizationCodeIssued(ctx context.Context, responseType string) {
	if m == nil {
		return
	}
	m.AuthorizationCodesIssued.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrResponseType, responseType)))
}

// RecordRevocation records a processed revocation request.
func (m *Metrics) RecordRevocation(ctx context.Context) {
	if m == nil {
		return
	}
	m.TokensRevoked.Add(ctx, 1)
}

// RecordAuthentication records a bearer token authentication attempt.
func (m *Metrics) RecordAuthentication(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.AuthenticationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordProtocolError records a protocol error by its error code.
func (m *Metrics) RecordProtocolError(ctx context.Context, handler, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrHandler, handler),
		attribute.String(AttrError, code),
	))
}
