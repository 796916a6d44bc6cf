// Package tracer is a small span API over OpenTelemetry so packages can emit
// traces without importing otel types everywhere.
//
// Implementations:
//   - NoopTracer: the default, and what tests use
//   - OTelTracer: backed by the global OpenTelemetry provider
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	// End must be called exactly once.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a span; pass the returned context to child operations.
	//
	//   ctx, span := t.Start(ctx, tracer.SpanVerify,
	//       tracer.String(tracer.AttrGeneration, "proven"),
	//   )
	//   defer span.End(nil)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanVerify           = "verification.verify"
	SpanCheckStructure   = "verification.structure"
	SpanCheckSignature   = "verification.signature"
	SpanCheckRevocation  = "verification.revocation"
	SpanCheckExpiration  = "verification.expiration"
	SpanExtractBadge     = "verification.extract"
	SpanResolveAssertion = "verification.assertion"
)

// Attribute keys.
const (
	AttrCredentialID       = "credential.id"
	AttrGeneration         = "credential.generation"
	AttrVerificationMethod = "proof.verification_method"
	AttrPassed             = "check.passed"
	AttrValid              = "result.valid"
	AttrErrorCount         = "result.errors"
	AttrImageKind          = "image.kind"
)
