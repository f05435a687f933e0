package adapters

import (
	"context"

	"github.com/rzzdr/quant-pricing-engine/pkg/models"
)

// PublishRecorder is the part of the metrics recorder the adapters need
type PublishRecorder interface {
	RecordPublish(sink string, err error)
}

// MetricsAdapter counts the runs handed to a named output
type MetricsAdapter struct {
	sink      string
	publisher Publisher
	recorder  PublishRecorder
}

var _ Publisher = (*MetricsAdapter)(nil)

// NewMetricsAdapter wraps publisher, recording each publish under sink
func NewMetricsAdapter(sink string, publisher Publisher, recorder PublishRecorder) *MetricsAdapter {
	return &MetricsAdapter{
		sink:      sink,
		publisher: publisher,
		recorder:  recorder,
	}
}

// Publish implements the Publisher interface
func (a *MetricsAdapter) Publish(ctx context.Context, event models.RunEvent) error {
	err := a.publisher.Publish(ctx, event)
	if a.recorder != nil {
		a.recorder.RecordPublish(a.sink, err)
	}
	return err
}
