package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kamir/leonbridge/internal/config"
	"github.com/skip2/go-qrcode"

	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// inboundBuffer sizes the queue between whatsmeow's event goroutine and
// the dispatcher. Arrival order is preserved; the router's drop-on-busy
// policy applies after dequeue.
const inboundBuffer = 64

// Session owns the one WhatsApp session: connect, QR pairing, readiness
// tracking, bounded reconnect, and sending. Inbound message events are
// queued and handed to a single dispatcher goroutine in arrival order.
type Session struct {
	cfg       config.WhatsAppConfig
	state     *SessionState
	ledger    *Ledger
	client    *whatsmeow.Client
	container *sqlstore.Container
	inbound   chan InboundMessage
	handler   func(context.Context, InboundMessage)
	lifecycle func(event, detail string)

	// sendChunkFn replaces the real wire send in tests.
	sendChunkFn func(ctx context.Context, to types.JID, text string) (string, error)

	mu        sync.Mutex
	loggedOut bool
	cancel    context.CancelFunc
}

// NewSession creates a session manager. handler receives every inbound
// message event; lifecycle (optional) is notified of state transitions.
func NewSession(cfg config.WhatsAppConfig, state *SessionState, ledger *Ledger) *Session {
	return &Session{
		cfg:     cfg,
		state:   state,
		ledger:  ledger,
		inbound: make(chan InboundMessage, inboundBuffer),
	}
}

// SetHandler installs the inbound message handler. Must be called before
// Start.
func (s *Session) SetHandler(h func(context.Context, InboundMessage)) {
	s.handler = h
}

// SetLifecycleHook installs an optional observer for session transitions
// (ready, disconnected, auth_failure, reconnect_exhausted).
func (s *Session) SetLifecycleHook(h func(event, detail string)) {
	s.lifecycle = h
}

// Start opens the credential store, connects the client (pairing via QR
// if no stored device) and launches the dispatcher.
func (s *Session) Start(ctx context.Context) error {
	dbLog := waLog.Stdout("Database", "WARN", true)
	clientLog := waLog.Stdout("Client", "INFO", true)

	dbPath := filepath.Join(s.cfg.StateDir, "whatsapp.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return fmt.Errorf("failed to init whatsapp db: %w", err)
	}
	s.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}

	s.client = whatsmeow.NewClient(deviceStore, clientLog)
	// Reconnection is this session's job: bounded linear backoff, then
	// manual restart. The client's own retry loop would fight that.
	s.client.EnableAutoReconnect = false
	s.client.AddEventHandler(s.eventHandler)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.dispatch(runCtx)

	if s.client.Store.ID == nil {
		// No stored session, pair via QR.
		qrChan, _ := s.client.GetQRChannel(context.Background())
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		fmt.Println("WhatsApp: Scan this QR code to login:")
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					qrPath := filepath.Join(s.cfg.StateDir, "whatsapp-qr.png")
					if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, qrPath); err == nil {
						fmt.Printf("\n🖼️  WhatsApp Login QR Code saved to: %s\n", qrPath)
						fmt.Println("Please open this file and scan it with your phone.")
					}
				} else {
					fmt.Println("WhatsApp: Login event:", evt.Event)
				}
			}
		}()
		return nil
	}

	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	fmt.Println("WhatsApp: Connected")
	return nil
}

// Stop disconnects the client and closes the credential store.
func (s *Session) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.container != nil {
		s.container.Close()
	}
	return nil
}

// SendText chunks text to the configured limit and sends each piece to
// the given JID. Every sent message ID is recorded in the ledger before
// the chunk goes over the wire, so an echo event can never outrun the
// ledger insert. Returns the recorded IDs.
func (s *Session) SendText(ctx context.Context, to, text string) ([]string, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return nil, fmt.Errorf("invalid JID %q: %w", to, err)
	}
	// ParseJID is lenient; an address without both parts is unroutable.
	if jid.User == "" || jid.Server == "" {
		return nil, fmt.Errorf("invalid JID %q", to)
	}

	chunks := SplitMessage(text, s.cfg.MaxChunk)
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		id, err := s.sendChunk(ctx, jid, chunk)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Session) sendChunk(ctx context.Context, to types.JID, text string) (string, error) {
	if s.sendChunkFn != nil {
		id, err := s.sendChunkFn(ctx, to, text)
		if err == nil {
			s.ledger.Record(id)
		}
		return id, err
	}

	if s.client == nil {
		return "", fmt.Errorf("client not initialized")
	}

	id := s.client.GenerateMessageID()
	s.ledger.Record(string(id))

	msg := &waE2E.Message{Conversation: proto.String(text)}
	_, err := s.client.SendMessage(ctx, to, msg, whatsmeow.SendRequestExtra{ID: id})
	if err != nil {
		// The send never happened, nothing will echo this ID back.
		s.ledger.Consume(string(id))
		return "", err
	}
	return string(id), nil
}

func (s *Session) eventHandler(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		own := ""
		if s.client.Store.ID != nil {
			own = s.client.Store.ID.User
		}
		s.state.SetReady(own)
		slog.Info("whatsapp session ready", "own_jid", own)
		s.notify("ready", own)

	case *events.LoggedOut:
		s.mu.Lock()
		s.loggedOut = true
		s.mu.Unlock()
		s.state.SetDisconnected()
		reason := fmt.Sprintf("%v", v.Reason)
		slog.Error("whatsapp auth failure, credentials must be re-established", "reason", reason)
		s.notify("auth_failure", reason)

	case *events.Disconnected:
		s.state.SetDisconnected()
		slog.Warn("whatsapp session disconnected")
		s.notify("disconnected", "")
		go s.reconnect()

	case *events.Message:
		s.enqueue(v)
	}
}

// enqueue translates a whatsmeow message event and pushes it onto the
// inbound queue. A full queue drops the event rather than blocking the
// client's event goroutine.
func (s *Session) enqueue(v *events.Message) {
	content := ""
	if v.Message.GetConversation() != "" {
		content = v.Message.GetConversation()
	} else if v.Message.GetExtendedTextMessage().GetText() != "" {
		content = v.Message.GetExtendedTextMessage().GetText()
	}

	msg := InboundMessage{
		ID:     v.Info.ID,
		From:   v.Info.Sender.String(),
		To:     v.Info.Chat.String(),
		FromMe: v.Info.IsFromMe,
		Body:   content,
	}

	select {
	case s.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message", "id", msg.ID)
	}
}

func (s *Session) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbound:
			if s.handler != nil {
				s.handler(ctx, msg)
			}
		}
	}
}

// reconnect runs one bounded, linearly backed-off reconnect attempt.
// After MaxReconnects consecutive failures the session stays down until
// the operator restarts the process.
func (s *Session) reconnect() {
	s.mu.Lock()
	out := s.loggedOut
	s.mu.Unlock()
	if out {
		return
	}

	if s.state.ReconnectAttempts() >= s.cfg.MaxReconnects {
		slog.Error("reconnect attempts exhausted, manual restart required", "max", s.cfg.MaxReconnects)
		s.notify("reconnect_exhausted", "")
		return
	}

	attempt := s.state.IncReconnectAttempts()
	delay := ReconnectDelay(attempt, s.cfg.ReconnectDelay)
	slog.Info("scheduling whatsapp reconnect", "attempt", attempt, "max", s.cfg.MaxReconnects, "delay", delay)

	time.Sleep(delay)

	if err := s.client.Connect(); err != nil {
		slog.Warn("reconnect failed", "attempt", attempt, "error", err)
		go s.reconnect()
	}
}

func (s *Session) notify(event, detail string) {
	if s.lifecycle != nil {
		s.lifecycle(event, detail)
	}
}
