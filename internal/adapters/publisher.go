// Package adapters connects the outputs of finished runs (Kafka, the
// websocket hub) behind a single publisher.
package adapters

import (
	"context"
	stderrors "errors"

	"github.com/rzzdr/quant-pricing-engine/internal/kafka"
	"github.com/rzzdr/quant-pricing-engine/internal/websocket"
	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/circuit"
)

// Publisher hands a finished run to an output
type Publisher interface {
	Publish(ctx context.Context, event models.RunEvent) error
}

// HubAdapter adapts *websocket.Hub to the Publisher interface
type HubAdapter struct {
	hub *websocket.Hub
}

var _ Publisher = (*HubAdapter)(nil)

// NewHubAdapter creates a new HubAdapter
func NewHubAdapter(hub *websocket.Hub) *HubAdapter {
	return &HubAdapter{hub: hub}
}

// Publish implements the Publisher interface. Delivery to slow clients is
// best effort and never fails the run.
func (a *HubAdapter) Publish(_ context.Context, event models.RunEvent) error {
	a.hub.BroadcastRun(event)
	return nil
}

var _ Publisher = (*kafka.ResultPublisher)(nil)

// Fanout publishes to every output in turn. One failing output does not
// keep the others from receiving the run.
type Fanout []Publisher

// Publish implements the Publisher interface
func (f Fanout) Publish(ctx context.Context, event models.RunEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// BreakerAdapter stops handing runs to an output that keeps failing
type BreakerAdapter struct {
	breaker   *circuit.Breaker
	publisher Publisher
}

var _ Publisher = (*BreakerAdapter)(nil)

// NewBreakerAdapter guards publisher with breaker
func NewBreakerAdapter(breaker *circuit.Breaker, publisher Publisher) *BreakerAdapter {
	return &BreakerAdapter{breaker: breaker, publisher: publisher}
}

// Publish implements the Publisher interface
func (a *BreakerAdapter) Publish(ctx context.Context, event models.RunEvent) error {
	return a.breaker.Do(ctx, func(ctx context.Context) error {
		return a.publisher.Publish(ctx, event)
	})
}
