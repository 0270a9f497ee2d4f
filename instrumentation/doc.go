// Package instrumentation provides OpenTelemetry metrics and tracing for
// the oauth2-core library.
//
// The library records into no-op providers unless the embedding application
// supplies its own MeterProvider and TracerProvider, so instrumentation is
// free when unused.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-auth-service",
//		ServiceVersion: "1.0.0",
//		MeterProvider:  sdkMeterProvider,
//		TracerProvider: sdkTracerProvider,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// Exported instruments:
//   - oauth.handler.requests.total{handler, success}
//   - oauth.handler.request.duration{handler}
//   - oauth.tokens.issued{grant_type}
//   - oauth.authorization_codes.issued{response_type}
//   - oauth.tokens.revoked
//   - oauth.authentications.total{success}
//   - oauth.errors.total{handler, error}
package instrumentation
