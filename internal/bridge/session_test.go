package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kamir/leonbridge/internal/config"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func newTestSession(t *testing.T, maxChunk int) (*Session, *SessionState, *Ledger) {
	t.Helper()
	cfg := config.WhatsAppConfig{
		ReplyTag:       "[Leon]",
		MaxChunk:       maxChunk,
		MaxReconnects:  3,
		ReconnectDelay: time.Millisecond,
		StateDir:       t.TempDir(),
	}
	state := NewSessionState()
	ledger := NewLedger()
	return NewSession(cfg, state, ledger), state, ledger
}

func TestSendTextChunksAndRecordsIDs(t *testing.T) {
	s, _, ledger := newTestSession(t, 10)

	var sentTexts []string
	n := 0
	s.sendChunkFn = func(ctx context.Context, to types.JID, text string) (string, error) {
		n++
		sentTexts = append(sentTexts, text)
		return fmt.Sprintf("WAMID-%d", n), nil
	}

	ids, err := s.SendText(context.Background(), "15551234567@s.whatsapp.net", "aaaaaaaaaa bbbbbbbbbb cccc")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(ids) != len(sentTexts) {
		t.Fatalf("expected one id per chunk, got %d ids for %d chunks", len(ids), len(sentTexts))
	}
	if len(sentTexts) < 2 {
		t.Fatalf("expected chunked send, got %d chunks", len(sentTexts))
	}
	for _, text := range sentTexts {
		if len(text) > 10 {
			t.Fatalf("chunk exceeds limit: %q", text)
		}
	}
	if ledger.Len() != len(ids) {
		t.Fatalf("expected %d ledger entries, got %d", len(ids), ledger.Len())
	}
	for _, id := range ids {
		if !ledger.Consume(id) {
			t.Fatalf("id %s not recorded in ledger", id)
		}
	}
}

func TestSendTextStopsOnFirstFailure(t *testing.T) {
	s, _, ledger := newTestSession(t, 10)

	n := 0
	s.sendChunkFn = func(ctx context.Context, to types.JID, text string) (string, error) {
		n++
		if n == 2 {
			return "", errors.New("websocket closed")
		}
		return fmt.Sprintf("WAMID-%d", n), nil
	}

	ids, err := s.SendText(context.Background(), "15551234567@s.whatsapp.net", "aaaaaaaaaa bbbbbbbbbb cccc")
	if err == nil {
		t.Fatalf("expected send failure")
	}
	if len(ids) != 1 {
		t.Fatalf("expected one sent chunk before the failure, got %d", len(ids))
	}
	if ledger.Len() != 1 {
		t.Fatalf("failed chunks must not leave ledger entries, got %d", ledger.Len())
	}
}

func TestSendTextRejectsInvalidJID(t *testing.T) {
	s, _, _ := newTestSession(t, 10)
	s.sendChunkFn = func(ctx context.Context, to types.JID, text string) (string, error) {
		t.Fatalf("send should not happen for an invalid JID")
		return "", nil
	}

	// ParseJID accepts these, but an address missing its user or server
	// part is unroutable and must be rejected before any send.
	for _, jid := range []string{"not a jid@@", "@s.whatsapp.net"} {
		if _, err := s.SendText(context.Background(), jid, "hi"); err == nil {
			t.Fatalf("expected error for %q", jid)
		}
	}
}

func TestEnqueueTranslatesMessageEvent(t *testing.T) {
	s, _, _ := newTestSession(t, 4000)

	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     types.NewJID("15550001111", types.DefaultUserServer),
				Sender:   types.NewJID("15550001111", types.DefaultUserServer),
				IsFromMe: true,
			},
			ID: "WAMID-42",
		},
		Message: &waE2E.Message{Conversation: proto.String("hello leon")},
	}
	s.enqueue(evt)

	select {
	case msg := <-s.inbound:
		if msg.ID != "WAMID-42" || !msg.FromMe || msg.Body != "hello leon" {
			t.Fatalf("bad translation: %#v", msg)
		}
		if msg.To != "15550001111@s.whatsapp.net" {
			t.Fatalf("bad chat JID: %q", msg.To)
		}
	default:
		t.Fatalf("expected message on inbound queue")
	}
}

func TestEnqueueExtendedTextMessage(t *testing.T) {
	s, _, _ := newTestSession(t, 4000)

	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("15551234567", types.DefaultUserServer),
				Sender: types.NewJID("15551234567", types.DefaultUserServer),
			},
			ID: "WAMID-43",
		},
		Message: &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted reply")},
		},
	}
	s.enqueue(evt)

	select {
	case msg := <-s.inbound:
		if msg.Body != "quoted reply" || msg.FromMe {
			t.Fatalf("bad translation: %#v", msg)
		}
	default:
		t.Fatalf("expected message on inbound queue")
	}
}

func TestReconnectStopsAtBound(t *testing.T) {
	s, state, _ := newTestSession(t, 4000)

	exhausted := false
	s.SetLifecycleHook(func(event, detail string) {
		if event == "reconnect_exhausted" {
			exhausted = true
		}
	})

	for i := 0; i < 3; i++ {
		state.IncReconnectAttempts()
	}
	s.reconnect()

	if !exhausted {
		t.Fatalf("expected reconnect_exhausted notification")
	}
	if state.ReconnectAttempts() != 3 {
		t.Fatalf("attempts must not exceed the bound, got %d", state.ReconnectAttempts())
	}
}

func TestAuthFailureDisablesReconnect(t *testing.T) {
	s, state, _ := newTestSession(t, 4000)

	var seen []string
	s.SetLifecycleHook(func(event, detail string) {
		seen = append(seen, event)
	})

	s.eventHandler(&events.LoggedOut{})
	if state.Ready() {
		t.Fatalf("expected not ready after logout")
	}

	// A reconnect after auth failure must give up immediately instead of
	// dialing with dead credentials.
	s.reconnect()
	if state.ReconnectAttempts() != 0 {
		t.Fatalf("expected no reconnect attempt after auth failure, got %d", state.ReconnectAttempts())
	}
	if len(seen) == 0 || seen[0] != "auth_failure" {
		t.Fatalf("expected auth_failure notification, got %v", seen)
	}
}
