package interfaces

import (
	"context"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// HistorySource fetches past messages from the chat platform's history
// API. Used to backfill short-term memory on cold start.
type HistorySource interface {
	// History returns up to limit recent messages for the channel in
	// chronological order (oldest first).
	History(ctx context.Context, channelID types.ChannelID, limit int) ([]*model.Message, error)
}
