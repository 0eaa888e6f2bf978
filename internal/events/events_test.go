package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestKafkaPublisherKeysBySubject(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w)
	err := p.Publish(context.Background(), Event{Type: OrderAccepted, SubjectID: "o1", ActorID: 7, From: "pending", To: "accepted"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "o1" {
		t.Errorf("key = %q", msg.Key)
	}
	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != OrderAccepted || got.ActorID != 7 || got.At.IsZero() {
		t.Errorf("unexpected payload %+v", got)
	}
}
