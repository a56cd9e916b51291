package reminder

import (
	"context"
	"errors"
)

// ErrChannelUnavailable signals that a channel cannot be attempted for this
// request (no subscription, preferences missing, feature not configured).
// The orchestrator treats it as a skip, not a failure: no failed metrics
// row is recorded and the next channel is tried immediately.
var ErrChannelUnavailable = errors.New("channel unavailable")

// ChannelAdapter is one delivery mechanism in the fallback chain.
// Implementations live in infra/channel/ (push gateway, web push, WhatsApp).
type ChannelAdapter interface {
	// Name returns which delivery channel this adapter handles.
	Name() Channel

	// Send delivers the reminder through this channel. It returns
	// ErrChannelUnavailable (possibly wrapped) when the channel does not
	// apply to this user, and any other error when the attempt itself failed.
	Send(ctx context.Context, req *ReminderRequest) error
}
