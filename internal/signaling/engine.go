// Package signaling implements the call-signaling engine: a per-call state
// machine with ICE-candidate buffering until both offer and answer have
// been delivered. The engine depends on router.Sink rather than importing
// the router directly, avoiding a cyclic dependency between the two
// components.
package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatgate/internal/metrics"
	"chatgate/internal/protocol"
	"chatgate/internal/router"
)

var terminalStates = map[string]bool{
	"REJECTED": true,
	"ENDED":    true,
	"BUSY":     true,
	"TIMEOUT":  true,
}

var signalToState = map[string]string{
	protocol.SignalCallOffer:       "OFFERED",
	protocol.SignalCallRinging:     "RINGING",
	protocol.SignalCallAnswer:      "ANSWERED",
	protocol.SignalCallConnected:   "CONNECTED",
	protocol.SignalCallRenegotiate: "RENEGOTIATING",
	protocol.SignalCallReject:      "REJECTED",
	protocol.SignalCallEnd:         "ENDED",
	protocol.SignalCallBusy:        "BUSY",
	protocol.SignalCallTimeout:     "TIMEOUT",
}

type iceCandidate struct {
	from    string
	to      string
	payload map[string]any
}

type callSession struct {
	sessionID       string
	callType        string
	initiator       string
	participants    map[string]struct{}
	state           string
	offerDelivered  bool
	answerDelivered bool
	iceBuffer       []iceCandidate
}

func (s *callSession) roster() []string {
	out := make([]string, 0, len(s.participants))
	for p := range s.participants {
		out = append(out, p)
	}
	return out
}

// Engine tracks in-flight call sessions and forwards signals to their peers.
type Engine struct {
	mu           sync.Mutex
	sessions     map[string]*callSession
	sink         router.Sink
	cleanupDelay time.Duration
}

// New constructs an Engine that forwards every signal through sink.
func New(sink router.Sink, cleanupDelay time.Duration) *Engine {
	return &Engine{sessions: make(map[string]*callSession), sink: sink, cleanupDelay: cleanupDelay}
}

// Handle processes one inbound signal frame, advancing the call's state
// machine and forwarding the resulting outbound signal to its peer.
func (e *Engine) Handle(ctx context.Context, from string, frame protocol.SignalFrame) {
	if frame.Signal == protocol.SignalICECandidate {
		e.handleICE(ctx, from, frame)
		return
	}

	e.mu.Lock()
	sess, exists := e.sessions[frame.SessionID]
	if !exists {
		if frame.Signal != protocol.SignalCallOffer {
			e.mu.Unlock()
			slog.Warn("signal dropped: unknown session", "component", "signaling", "session_id", frame.SessionID, "signal", frame.Signal)
			return
		}
		sess = &callSession{
			sessionID:    frame.SessionID,
			callType:     frame.CallType,
			initiator:    from,
			participants: map[string]struct{}{from: {}, frame.To: {}},
		}
		sess.offerDelivered = true
		e.sessions[frame.SessionID] = sess
		metrics.ActiveCallSessions.Inc()
	}

	out := protocol.OutboundSignal{
		Signal:    frame.Signal,
		From:      from,
		To:        frame.To,
		SessionID: frame.SessionID,
		CallType:  sess.callType,
		Payload:   frame.Payload,
	}

	switch frame.Signal {
	case protocol.SignalCallAnswer:
		sess.answerDelivered = true
	case protocol.SignalCallConnected:
		out.Participants = sess.roster()
	case protocol.SignalCallRenegotiate:
		out.Renegotiate = true
		out.Participants = sess.roster()
	case protocol.SignalCallParticipantAdd:
		if frame.NewParticipant != "" {
			sess.participants[frame.NewParticipant] = struct{}{}
		}
		out.Participants = sess.roster()
	case protocol.SignalCallParticipantRem:
		if frame.UserID != "" {
			delete(sess.participants, frame.UserID)
		}
		out.Participants = sess.roster()
	}

	if next, ok := signalToState[frame.Signal]; ok {
		sess.state = next
		out.State = next
	}

	terminal := terminalStates[sess.state]
	var buffered []iceCandidate
	if frame.Signal == protocol.SignalCallAnswer {
		buffered = sess.iceBuffer
		sess.iceBuffer = nil
	}
	e.mu.Unlock()

	e.sink.SendLocalOrRelay(ctx, frame.To, out)

	for _, c := range buffered {
		e.sink.SendLocalOrRelay(ctx, c.to, protocol.OutboundSignal{
			Signal:    protocol.SignalICECandidate,
			From:      c.from,
			To:        c.to,
			SessionID: frame.SessionID,
			Payload:   c.payload,
		})
	}

	if terminal {
		e.scheduleRemoval(frame.SessionID)
	}
}

func (e *Engine) handleICE(ctx context.Context, from string, frame protocol.SignalFrame) {
	e.mu.Lock()
	sess, exists := e.sessions[frame.SessionID]
	if !exists {
		e.mu.Unlock()
		slog.Warn("ICE candidate dropped: unknown session", "component", "signaling", "session_id", frame.SessionID)
		return
	}

	ready := sess.offerDelivered && sess.answerDelivered
	if !ready {
		sess.iceBuffer = append(sess.iceBuffer, iceCandidate{from: from, to: frame.To, payload: frame.Payload})
	}
	e.mu.Unlock()

	if ready {
		e.sink.SendLocalOrRelay(ctx, frame.To, protocol.OutboundSignal{
			Signal:    protocol.SignalICECandidate,
			From:      from,
			To:        frame.To,
			SessionID: frame.SessionID,
			Payload:   frame.Payload,
		})
	}
}

// scheduleRemoval removes the session after the configured delay. A later
// signal extending the session is allowed to stand; the removal still
// fires on the original schedule and finding no session at that moment is
// a no-op.
func (e *Engine) scheduleRemoval(sessionID string) {
	time.AfterFunc(e.cleanupDelay, func() {
		e.mu.Lock()
		if _, ok := e.sessions[sessionID]; ok {
			delete(e.sessions, sessionID)
			metrics.ActiveCallSessions.Dec()
		}
		e.mu.Unlock()
	})
}

// Has reports whether a call session is currently tracked, for tests and
// diagnostics.
func (e *Engine) Has(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[sessionID]
	return ok
}
