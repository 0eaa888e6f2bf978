package notify

import (
	"context"
	"strings"
	"testing"

	"caravan/internal/gateway/gatewaytest"
	"caravan/internal/i18n"
	"caravan/internal/logging"
	"caravan/internal/types"
)

const admin types.ChatID = -100

func TestSendFailureGoesToAdminOnce(t *testing.T) {
	rec := gatewaytest.New()
	rec.FailChats[7] = true
	n := New(rec, i18n.MustLoadEmbedded("uz"), admin, logging.Discard())

	if _, ok := n.Send(context.Background(), 7, "hello", nil, "order 1"); ok {
		t.Fatalf("expected failed send")
	}
	calls := rec.To(admin)
	if len(calls) != 1 {
		t.Fatalf("expected one fallback notice, got %d", len(calls))
	}
	if !strings.Contains(calls[0].Text, "order 1") {
		t.Fatalf("fallback should name the subject: %q", calls[0].Text)
	}
}

func TestAdminFailureDoesNotLoop(t *testing.T) {
	rec := gatewaytest.New()
	rec.FailChats[admin] = true
	n := New(rec, i18n.MustLoadEmbedded("uz"), admin, logging.Discard())

	if _, ok := n.Send(context.Background(), admin, "card", nil, "order 1"); ok {
		t.Fatalf("expected failed send")
	}
	if got := len(rec.Calls()); got != 0 {
		t.Fatalf("expected no recorded calls, got %d", got)
	}
}

func TestPhotoWithoutFileSendsText(t *testing.T) {
	rec := gatewaytest.New()
	n := New(rec, i18n.MustLoadEmbedded("uz"), admin, logging.Discard())

	ref, ok := n.Photo(context.Background(), 5, "", "caption", nil, "x")
	if !ok || ref.MessageID == 0 {
		t.Fatalf("expected delivered message")
	}
	last, _ := rec.Last(5)
	if last.Op != gatewaytest.OpSend {
		t.Fatalf("expected text send, got %s", last.Op)
	}
}

func TestEditSkipsZeroRef(t *testing.T) {
	rec := gatewaytest.New()
	n := New(rec, i18n.MustLoadEmbedded("uz"), admin, logging.Discard())
	n.Edit(context.Background(), types.MessageRef{}, "x", nil)
	n.Delete(context.Background(), types.MessageRef{})
	if len(rec.Calls()) != 0 {
		t.Fatalf("zero refs must be ignored")
	}
}
