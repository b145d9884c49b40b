package relay

import (
	"context"
	"fmt"

	"warelay/models"

	"github.com/rs/zerolog"
)

// Inbox serves the dashboard's read side.
type Inbox struct {
	store    HistoryStore
	notifier Notifier
	logger   zerolog.Logger
}

func NewInbox(store HistoryStore, notifier Notifier, logger zerolog.Logger) *Inbox {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Inbox{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "inbox").Logger(),
	}
}

func (i *Inbox) Conversations(ctx context.Context) ([]models.Conversation, error) {
	convs, err := i.store.Conversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// History returns the exchange with peer, oldest first, then marks the peer's
// received messages as read. The two steps are not atomic.
func (i *Inbox) History(ctx context.Context, peer string) ([]models.Message, error) {
	if peer == "" {
		return nil, invalid("Phone number is required.")
	}

	msgs, err := i.store.History(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", peer, err)
	}

	n, err := i.store.MarkRead(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("mark %s read: %w", peer, err)
	}
	if n > 0 {
		i.logger.Debug().Str("peer", peer).Int64("count", n).Msg("Marked messages read")
		i.notifier.Notify(EventMessagesRead, peer, ReadReceipt{Peer: peer, Count: n})
	}
	return msgs, nil
}
