package audit

import (
	"context"
	"time"
)

// Event records one state change to a credential or its status. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time
	Action       string
	ActorID      string
	IssuerID     string
	CredentialID string
	StatusListID string
	Reason       string
	RequestID    string
}

type Action string

const (
	EventCredentialIssued     Action = "credential_issued"
	EventCredentialRevoked    Action = "credential_revoked"
	EventCredentialReinstated Action = "credential_reinstated"
)

// Store persists audit events. Append must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCredential(ctx context.Context, credentialID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
