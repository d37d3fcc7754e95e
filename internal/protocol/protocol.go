// Package protocol defines the wire shapes exchanged over the gateway's
// websocket endpoint and carried across the relay bus and undelivered store.
package protocol

// Inbound frame discriminators.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Call-signaling discriminator values for the "signal" field.
const (
	SignalCallOffer           = "CALL_OFFER"
	SignalCallRinging         = "CALL_RINGING"
	SignalCallAnswer          = "CALL_ANSWER"
	SignalCallConnected       = "CALL_CONNECTED"
	SignalCallRenegotiate     = "CALL_RENEGOTIATE"
	SignalCallReject          = "CALL_REJECT"
	SignalCallEnd             = "CALL_END"
	SignalCallBusy            = "CALL_BUSY"
	SignalCallTimeout         = "CALL_TIMEOUT"
	SignalCallParticipantAdd  = "CALL_PARTICIPANT_ADD"
	SignalCallParticipantRem  = "CALL_PARTICIPANT_REMOVE"
	SignalICECandidate        = "ICE_CANDIDATE"
)

// CallSignals is the full recognized signal set, used by the inbound
// dispatcher to decide between the call-signaling and chat paths.
var CallSignals = map[string]bool{
	SignalCallOffer:          true,
	SignalCallRinging:        true,
	SignalCallAnswer:         true,
	SignalCallConnected:      true,
	SignalCallRenegotiate:    true,
	SignalCallReject:         true,
	SignalCallEnd:            true,
	SignalCallBusy:           true,
	SignalCallTimeout:        true,
	SignalCallParticipantAdd: true,
	SignalCallParticipantRem: true,
	SignalICECandidate:       true,
}

// MessageType values for an Envelope.
const (
	MessageTypeChat = "chat"
	MessageTypeFile = "file"
)

// Notification channel discriminators.
const (
	ChannelSMS   = "SMS"
	ChannelEmail = "EMAIL"
	ChannelInApp = "INAPP"
)

// PingFrame is the minimal heartbeat shape; both directions use it.
type PingFrame struct {
	Type string `json:"type"`
}

// InboundFrame is the first-pass decode used by the inbound dispatcher to
// discriminate call-signaling from chat before decoding the full shape.
type InboundFrame struct {
	Type   string `json:"type,omitempty"`
	Signal string `json:"signal,omitempty"`
}

// ChatRequest is the inbound chat shape.
type ChatRequest struct {
	SenderID      string            `json:"senderId"`
	ReceiverID    string            `json:"receiverId"`
	MessageID     string            `json:"messageId"`
	ActualMessage string            `json:"actualMessage,omitempty"`
	SampleMessage string            `json:"sampleMessage,omitempty"`
	Files         map[string]string `json:"files,omitempty"`
	Timestamp     int64             `json:"timestamp,omitempty"`
}

// SignalFrame is the inbound call-signaling shape.
type SignalFrame struct {
	Signal          string          `json:"signal"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	SessionID       string          `json:"sessionId"`
	CallType        string          `json:"callType,omitempty"`
	Payload         map[string]any  `json:"payload,omitempty"`
	NewParticipant  string          `json:"newParticipant,omitempty"`
	UserID          string          `json:"userId,omitempty"`
}

// Envelope is the outbound message handed to a client socket, relayed
// across pods, or persisted in the undelivered store.
type Envelope struct {
	SenderID          string            `json:"senderId"`
	SenderMobile      string            `json:"senderMobile,omitempty"`
	SenderDisplayName string            `json:"senderDisplayName,omitempty"`
	ReceiverID        string            `json:"receiverId"`
	MessageID         string            `json:"messageId"`
	ActualMessage     string            `json:"actualMessage,omitempty"`
	Files             map[string]string `json:"files,omitempty"`
	MessageType       string            `json:"messageType"`
	Delivered         bool              `json:"delivered"`
	DeliveredAt       int64             `json:"deliveredAt,omitempty"`
	Read              bool              `json:"read"`
	Timestamp         int64             `json:"timestamp"`
}

// HasContent reports whether the envelope carries text or at least one
// file; the delivery router drops an envelope with neither.
func (e Envelope) HasContent() bool {
	return e.ActualMessage != "" || len(e.Files) > 0
}

// RelayPayload is the shape published on the shared relay channel.
type RelayPayload struct {
	FromUserID   string `json:"fromUserId"`
	TargetUserID string `json:"targetUserId"`
	Message      string `json:"message"`
}

// OfflineNotification is published to the offline notification topic.
type OfflineNotification struct {
	CustomerID int64             `json:"customerId"`
	Kind       string            `json:"kind"`
	Channel    string            `json:"channel"`
	Data       map[string]string `json:"data"`

	// ReceiverID is the raw receiver ID the notification was generated for.
	// It drives the publisher's partition key and is not part of the wire
	// payload: downstream consumers key off CustomerID instead.
	ReceiverID string `json:"-"`
}

// SampleNotification is published to the legacy in-app/OTP topic.
type SampleNotification struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// OutboundSignal is the forwarded call-signaling frame sent to a peer via
// the delivery router.
type OutboundSignal struct {
	Signal       string         `json:"signal"`
	From         string         `json:"from"`
	To           string         `json:"to"`
	SessionID    string         `json:"sessionId"`
	CallType     string         `json:"callType,omitempty"`
	State        string         `json:"state,omitempty"`
	Participants []string       `json:"participants,omitempty"`
	Renegotiate  bool           `json:"renegotiate,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}
