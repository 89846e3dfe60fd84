// Package metrics registers the service's OpenTelemetry instruments on the
// global meter. Instruments are no-ops until the deployment installs a meter
// provider with otel.SetMeterProvider.
package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "evidence-ledger"

type instruments struct {
	auditAttempts   metric.Int64Counter
	auditFailures   metric.Int64Counter
	auditAlerts     metric.Int64Counter
	verifyOutcomes  metric.Int64Counter
	outboxPublished metric.Int64Counter
	outboxFailed    metric.Int64Counter
}

var (
	once sync.Once
	inst instruments
)

func get() *instruments {
	once.Do(func() {
		meter := otel.Meter(meterName)
		inst = instruments{
			auditAttempts:   counter(meter, "audit.append.attempts", "Ledger append attempts"),
			auditFailures:   counter(meter, "audit.append.failures", "Failed ledger append attempts"),
			auditAlerts:     counter(meter, "audit.append.alerts", "Ledger appends abandoned after all retries"),
			verifyOutcomes:  counter(meter, "verifier.outcomes", "Integrity verification outcomes by result"),
			outboxPublished: counter(meter, "outbox.published", "Ledger entries handed to the external ledger"),
			outboxFailed:    counter(meter, "outbox.failed", "Failed hand-offs to the external ledger"),
		}
	})
	return &inst
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		log.Printf("[metrics] create counter %s: %v", name, err)
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(name)
	}
	return c
}

func AuditAttempt(ctx context.Context) { get().auditAttempts.Add(ctx, 1) }
func AuditFailure(ctx context.Context) { get().auditFailures.Add(ctx, 1) }
func AuditAlert(ctx context.Context)   { get().auditAlerts.Add(ctx, 1) }

// VerifyOutcome counts one verification with its audit result tag.
func VerifyOutcome(ctx context.Context, result string) {
	get().verifyOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func OutboxPublished(ctx context.Context) { get().outboxPublished.Add(ctx, 1) }
func OutboxFailed(ctx context.Context)    { get().outboxFailed.Add(ctx, 1) }
