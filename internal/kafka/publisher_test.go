package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func testEvent() models.RunEvent {
	value := decimal.NewFromInt(1_000_000)
	return models.RunEvent{
		Run: models.Run{
			ID:             "run-1",
			Status:         models.RunStatusCompleted,
			EvaluationDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Instruments:    2,
		},
		Results: []models.Result{
			{InstrumentID: "KRWCASH(DESK)", Currency: "KRW", RepresentationCurrency: "KRW", Value: &value},
			{InstrumentID: "005930(KRX)", Currency: "KRW", RepresentationCurrency: "KRW"},
		},
	}
}

func TestPublishWritesResultsThenRun(t *testing.T) {
	w := &fakeWriter{}
	p := NewResultPublisherWithWriter(w, "pricing.results")

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 3)

	assert.Equal(t, "KRWCASH(DESK)", string(w.msgs[0].Key))
	assert.Equal(t, KindResult, header(w.msgs[0], "kind"))
	assert.Equal(t, "run-1", header(w.msgs[0], "run-id"))
	assert.Equal(t, "application/json", header(w.msgs[0], "content-type"))
	assert.NotEqual(t, header(w.msgs[0], "message-id"), header(w.msgs[1], "message-id"))

	var res models.Result
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &res))
	require.NotNil(t, res.Value)
	assert.True(t, res.Value.Equal(decimal.NewFromInt(1_000_000)))

	last := w.msgs[2]
	assert.Equal(t, "run-1", string(last.Key))
	assert.Equal(t, KindRun, header(last, "kind"))
	var run models.Run
	require.NoError(t, json.Unmarshal(last.Value, &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Instruments)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishReportsWriterErrors(t *testing.T) {
	w := &fakeWriter{err: stderrors.New("broker unavailable")}
	p := NewResultPublisherWithWriter(w, "pricing.results")

	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeNetwork))
	assert.Contains(t, err.Error(), "broker unavailable")
}

func TestNewResultPublisherValidatesConfig(t *testing.T) {
	_, err := NewResultPublisher(Config{Topic: "t"})
	assert.Error(t, err)
	_, err = NewResultPublisher(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
	_, err = NewResultPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "t", RequiredAcks: "some"})
	assert.Error(t, err)
	_, err = NewResultPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "brotli"})
	assert.Error(t, err)

	p, err := NewResultPublisher(Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "pricing.results",
		RequiredAcks: "one",
		Compression:  "snappy",
	})
	require.NoError(t, err)
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.Equal(t, kafka.Snappy, w.Compression)
	require.NoError(t, p.Close())
}
