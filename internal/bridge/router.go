package bridge

import (
	"context"
	"log/slog"
	"strings"
)

// BackendUnreachableNotice is the canned text posted when the backend
// could not be reached. It is matched verbatim on the inbound side so a
// notice echoed back can never be relayed again.
const BackendUnreachableNotice = "⚠️ Leon is unreachable right now. Try again in a moment."

// InboundMessage is the bridge's view of one WhatsApp message event.
type InboundMessage struct {
	ID     string
	From   string // sender JID
	To     string // conversation JID
	FromMe bool
	Body   string
}

// Verdict is the router's decision for one inbound message.
type Verdict int

const (
	VerdictForward Verdict = iota
	VerdictDropGroup
	VerdictDropEcho
	VerdictDropNotSelfChat
	VerdictDropNotAllowed
	VerdictDropContent
	VerdictDropBusy
)

func (v Verdict) String() string {
	switch v {
	case VerdictForward:
		return "forward"
	case VerdictDropGroup:
		return "drop:group"
	case VerdictDropEcho:
		return "drop:own-echo"
	case VerdictDropNotSelfChat:
		return "drop:not-self-chat"
	case VerdictDropNotAllowed:
		return "drop:not-allowed"
	case VerdictDropContent:
		return "drop:content"
	case VerdictDropBusy:
		return "drop:busy"
	default:
		return "unknown"
	}
}

// Relayer forwards message text to the agent backend.
type Relayer interface {
	Relay(ctx context.Context, message string) (string, error)
}

// Router decides, for every inbound message, whether it is addressed to
// the agent, and if so drives the relay-and-reply pipeline.
type Router struct {
	state     *SessionState
	ledger    *Ledger
	lock      *ProcessingLock
	relay     Relayer
	allowFrom map[string]bool
	replyTag  string
	sendFn    func(ctx context.Context, to, text string) error
}

// NewRouter creates a router. sendFn delivers the tagged reply back into
// the originating conversation.
func NewRouter(state *SessionState, ledger *Ledger, relay Relayer, allowFrom []string, replyTag string, sendFn func(ctx context.Context, to, text string) error) *Router {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		if n := normalizeID(id); n != "" {
			allowed[n] = true
		}
	}
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Router{
		state:     state,
		ledger:    ledger,
		lock:      NewProcessingLock(),
		relay:     relay,
		allowFrom: allowed,
		replyTag:  replyTag,
		sendFn:    sendFn,
	}
}

// Classify applies the drop rules in their required order and
// short-circuits on the first match. The ledger check runs before the
// FromMe branch: an echoed reply is FromMe too, and only ledger
// membership tells it apart from a genuine self-chat message.
func (r *Router) Classify(evt InboundMessage) Verdict {
	if isGroupOrBroadcast(evt.From) || isGroupOrBroadcast(evt.To) {
		return VerdictDropGroup
	}

	if r.ledger.Consume(evt.ID) {
		return VerdictDropEcho
	}

	if evt.FromMe {
		if !r.isSelfChat(evt.To) {
			return VerdictDropNotSelfChat
		}
	} else {
		if !r.allowFrom[normalizeID(evt.From)] {
			return VerdictDropNotAllowed
		}
	}

	body := strings.TrimSpace(evt.Body)
	if body == "" || strings.HasPrefix(body, r.replyTag) || body == BackendUnreachableNotice {
		return VerdictDropContent
	}

	if r.lock.Held() {
		return VerdictDropBusy
	}

	return VerdictForward
}

// Handle classifies evt and, when eligible, relays it to the backend and
// sends the tagged reply. At most one message is in the pipeline at a
// time; concurrent arrivals are dropped, not queued. Backend failures
// are logged and swallowed. The bridge never posts its own errors into
// the monitored chat.
func (r *Router) Handle(ctx context.Context, evt InboundMessage) Verdict {
	verdict := r.Classify(evt)
	if verdict != VerdictForward {
		slog.Debug("message dropped", "verdict", verdict.String(), "id", evt.ID, "from", evt.From)
		return verdict
	}

	if !r.lock.TryAcquire() {
		slog.Info("message skipped, reply already in flight", "id", evt.ID)
		return VerdictDropBusy
	}
	defer r.lock.Release()

	slog.Info("relaying message", "id", evt.ID, "chars", len(evt.Body))

	response, err := r.relay.Relay(ctx, strings.TrimSpace(evt.Body))
	if err != nil {
		slog.Error("backend relay failed", "id", evt.ID, "error", err)
		return VerdictForward
	}

	reply := r.replyTag + " " + strings.TrimSpace(response)
	if err := r.sendFn(ctx, evt.To, reply); err != nil {
		slog.Error("reply send failed", "id", evt.ID, "to", evt.To, "error", err)
	}
	return VerdictForward
}

// isSelfChat reports whether the conversation JID is the operator's own
// number, i.e. the operator messaging themself.
func (r *Router) isSelfChat(to string) bool {
	own := r.state.OwnJID()
	if own == "" {
		return false
	}
	return normalizeID(to) == normalizeID(own)
}

// isGroupOrBroadcast matches group chats (…@g.us) and broadcast or
// status channels (…@broadcast).
func isGroupOrBroadcast(jid string) bool {
	return strings.HasSuffix(jid, "@g.us") || strings.HasSuffix(jid, "@broadcast")
}

// normalizeID reduces a JID or phone number to its bare user part:
// "15551234567:12@s.whatsapp.net" → "15551234567".
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	return id
}
