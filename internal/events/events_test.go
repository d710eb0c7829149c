package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/klicker/internal/model"
)

func TestTopics(t *testing.T) {
	for _, tc := range []struct {
		got, want string
	}{
		{TopicActive, "klicker.active.current"},
		{SessionTopic("ses-abc"), "klicker.sessions.ses-abc"},
		{SessionTopic("odd.id"), "klicker.sessions.odd_id"},
		{DocTopic(model.CollectionActive, model.ActiveDocID), TopicActive},
	} {
		if tc.got != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicActive, model.ActivePointer{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_PublishSession(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(SessionTopic("ses-1"), ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	doc := model.Session{ID: "ses-1", PresenterUID: "anon-1", Command: model.CommandNext, CommandID: 7}
	if err := pub.Publish(context.Background(), SessionTopic("ses-1"), doc); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got model.Session
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.CommandID != 7 || got.Command != model.CommandNext {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	err = pub.Publish(context.Background(), TopicActive, model.ActivePointer{})
	if err == nil {
		t.Error("expected error publishing after close")
	}
}

func TestNATSPublisher_CloseDeliversPending(t *testing.T) {
	url := startTestNATS(t)

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()
	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicActive, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicActive, model.ActivePointer{SessionID: "ses-last"}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !pub.conn.IsClosed() {
		t.Fatal("connection still open after Close returned")
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	select {
	case msg := <-ch:
		var got model.ActivePointer
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.SessionID != "ses-last" {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot published before Close was lost")
	}
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicActive, model.ActivePointer{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish with cancelled ctx = %v, want context.Canceled", err)
	}
}
