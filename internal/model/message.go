package model

import (
	"encoding/json"
	"fmt"
)

// Envelope is the only part of a client message the relay ever decodes.
type Envelope struct {
	Type MessageType `json:"type"`
}

type CodeIssuedMessage struct {
	Type             MessageType `json:"type"`
	Code             string      `json:"code"`
	ExpiresInSeconds int         `json:"expiresInSeconds"`
}

type ApprovalRequestedMessage struct {
	Type MessageType `json:"type"`
	JoinerMetadata
}

type PeerDisconnectedMessage struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason,omitempty"`
}

type WaitingForApprovalMessage struct {
	Type        MessageType `json:"type"`
	DisplayName string      `json:"displayName,omitempty"`
}

type ApprovedMessage struct {
	Type        MessageType `json:"type"`
	DisplayName string      `json:"displayName,omitempty"`
}

type RejectedMessage struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

type InvalidCodeMessage struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

type RateLimitedMessage struct {
	Type              MessageType `json:"type"`
	RetryAfterSeconds int         `json:"retryAfterSeconds"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// RejectRequest is the optional body of a client reject message.
type RejectRequest struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason,omitempty"`
}

// ParseClientMessage extracts the discriminator of a client frame and checks
// it against the kinds a client is allowed to send. The rest of the payload is
// left untouched.
func ParseClientMessage(data []byte) (MessageType, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message has no type")
	}
	if !env.Type.Relayable() && !env.Type.Control() {
		return "", fmt.Errorf("message type %q is not accepted", truncate(string(env.Type), 32))
	}
	return env.Type, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
