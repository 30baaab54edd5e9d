package slack

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// Service fetches channel history from the Slack API. It is the
// HistorySource used to backfill short-term memory; all other platform
// wiring lives outside this repository.
type Service struct {
	api *slack.Client
}

var _ interfaces.HistorySource = &Service{}

// New creates a Slack history source with the provided bot token
func New(token string) (*Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}
	return &Service{api: slack.New(token)}, nil
}

// History returns up to limit recent channel messages in chronological
// order (oldest first).
func (s *Service) History(ctx context.Context, channelID types.ChannelID, limit int) ([]*model.Message, error) {
	resp, err := s.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID.String(),
		Limit:     limit,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch channel history", goerr.V("channel", channelID))
	}

	messages := make([]*model.Message, 0, len(resp.Messages))
	for _, raw := range resp.Messages {
		msg := convertMessage(channelID, &raw)
		if msg == nil {
			continue
		}
		messages = append(messages, msg)
	}

	// Slack returns newest first
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

func convertMessage(channelID types.ChannelID, raw *slack.Message) *model.Message {
	author := raw.User
	if author == "" {
		author = raw.BotID
	}
	if author == "" || raw.Text == "" && len(raw.Files) == 0 {
		return nil
	}

	msg := &model.Message{
		AuthorID:  author,
		Content:   raw.Text,
		Timestamp: parseSlackTimestamp(raw.Timestamp),
		ChannelID: channelID,
		IsBot:     raw.BotID != "",
	}
	for _, f := range raw.Files {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			URL:         f.URLPrivate,
			Description: f.Title,
		})
	}
	return msg
}

// parseSlackTimestamp converts Slack's "seconds.microseconds" message
// timestamp to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micro int64
	if len(parts) == 2 {
		if m, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			micro = m
		}
	}
	return time.Unix(sec, micro*1000).UTC()
}
