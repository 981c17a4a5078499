package notify

//go:generate mockgen -destination=mock/mock_sender.go -package=mock github.com/tbeaudouin05/billing-reconciler/api/services/notify Sender

import (
	"context"
	"errors"
)

// Kind selects the email template.
type Kind string

const (
	KindWelcome      Kind = "welcome"
	KindActivation   Kind = "activation"
	KindCancellation Kind = "cancellation"
)

// ErrUnknownKind is returned for a Kind without a template.
var ErrUnknownKind = errors.New("unknown notification kind")

// Data carries template variables.
type Data map[string]string

// Sender delivers a single transactional message.
type Sender interface {
	Send(ctx context.Context, to string, kind Kind, data Data) error
}

// Discard is a Sender that drops every message. Used when no email
// provider is configured.
type Discard struct{}

func (Discard) Send(context.Context, string, Kind, Data) error { return nil }
