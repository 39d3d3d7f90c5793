package model

type SessionState string

const (
	SessionStateAwaitingJoiner   SessionState = "awaiting_joiner"
	SessionStateAwaitingApproval SessionState = "awaiting_approval"
	SessionStatePaired           SessionState = "paired"
	SessionStateEnded            SessionState = "ended"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleJoiner    Role = "joiner"
)

func (r Role) Valid() bool {
	return r == RoleInitiator || r == RoleJoiner
}

type MessageType string

// Server-generated, initiator-bound
const (
	MessageCodeIssued        MessageType = "code-issued"
	MessageApprovalRequested MessageType = "approval-requested"
	MessagePeerDisconnected  MessageType = "peer-disconnected"
)

// Server-generated, joiner-bound
const (
	MessageWaitingForApproval MessageType = "waiting-for-approval"
	MessageApproved           MessageType = "approved"
	MessageRejected           MessageType = "rejected"
	MessageInvalidCode        MessageType = "invalid-code"
	MessageRateLimited        MessageType = "rate-limited"
)

// Server-generated, either side
const MessageError MessageType = "error"

// Peer-to-peer, relayed verbatim once paired
const (
	MessageOffer        MessageType = "offer"
	MessageAnswer       MessageType = "answer"
	MessageICECandidate MessageType = "ice-candidate"
	MessagePauseNotice  MessageType = "pause-notice"
)

// Client-to-server control
const (
	MessageApprove MessageType = "approve"
	MessageReject  MessageType = "reject"
	MessageLeave   MessageType = "leave"
)

// Relayable reports whether t may be forwarded between paired peers.
func (t MessageType) Relayable() bool {
	switch t {
	case MessageOffer, MessageAnswer, MessageICECandidate, MessagePauseNotice:
		return true
	}
	return false
}

// Control reports whether t is a client-to-server control message.
func (t MessageType) Control() bool {
	switch t {
	case MessageApprove, MessageReject, MessageLeave:
		return true
	}
	return false
}

// CloseCode mirrors the WebSocket close codes the relay uses.
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	ClosePolicyViolation CloseCode = 1008
	CloseInternalError   CloseCode = 1011
)

// Teardown reasons reported in peer-disconnected.
const (
	ReasonPeerLeft       = "peer-left"
	ReasonPeerClosed     = "peer-closed"
	ReasonCodeExpired    = "code-expired"
	ReasonServerShutdown = "server-shutdown"
	ReasonRejected       = "rejected"
)
