package usecase

import (
	"context"
	"errors"
	"strconv"

	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/service/embedding"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

// ConversationContext is the material handed to the reply generator:
// recent turns from short-term memory plus semantically related past
// exchanges from the vector index.
type ConversationContext struct {
	Recent  []*model.Message  `json:"recent"`
	Related []model.VectorHit `json:"related,omitempty"`
}

// turnContent is the durable payload persisted for each conversation turn
type turnContent struct {
	Author      string   `json:"author"`
	Text        string   `json:"text"`
	IsBot       bool     `json:"is_bot"`
	Attachments []string `json:"attachments,omitempty"`
}

// EnsureIndex provisions the vector index when similarity recall is
// configured. Safe to call on every startup: index creation is
// idempotent.
func (uc *UseCases) EnsureIndex(ctx context.Context) error {
	if uc.vectors == nil || !uc.embedder.Enabled() {
		return nil
	}
	return uc.vectors.CreateIndex(ctx, uc.indexName, uc.embedder.Dimension())
}

func statsKey(channelID types.ChannelID) string {
	return "stats:messages:" + channelID.String()
}

// HandleMessage ingests one conversation turn: the fast in-process path
// (short-term buffer), the durable path (memory record keyed by the
// channel's category), and, when embeddings are configured, the vector
// index. A missing embedding provider degrades to skipping the index,
// never to an error.
func (uc *UseCases) HandleMessage(ctx context.Context, msg *model.Message) (types.MemoryID, error) {
	if msg == nil || msg.ChannelID == "" {
		return "", goerr.New("message must have a channel ID")
	}

	if err := uc.shortTerm.AddMessage(ctx, msg); err != nil {
		return "", err
	}

	if err := uc.bumpMessageCount(ctx, msg.ChannelID); err != nil {
		// Contention on the counter must not lose the message itself
		logging.From(ctx).Warn("failed to update message counter",
			"channel", msg.ChannelID, "error", err.Error())
	}

	content := turnContent{
		Author: msg.AuthorID,
		Text:   msg.Content,
		IsBot:  msg.IsBot,
	}
	for _, a := range msg.Attachments {
		content.Attachments = append(content.Attachments, a.URL)
	}
	value, err := model.Object(content)
	if err != nil {
		return "", err
	}

	memID, err := uc.memories.Create(ctx, msg.ChannelID.Category(), value, map[string]string{
		"author_id": msg.AuthorID,
		"is_bot":    strconv.FormatBool(msg.IsBot),
	})
	if err != nil {
		return "", err
	}

	uc.indexMessage(ctx, memID, msg)
	return memID, nil
}

// bumpMessageCount increments the per-channel counter through the
// sanctioned read-modify-write path. A bare get/set here would lose
// updates under concurrent ingestion.
func (uc *UseCases) bumpMessageCount(ctx context.Context, channelID types.ChannelID) error {
	return uc.locks.AtomicUpdate(ctx, statsKey(channelID), 0, func(current model.Value, exists bool) (model.Value, error) {
		count := int64(0)
		if exists {
			n, err := strconv.ParseInt(current.Text(), 10, 64)
			if err != nil {
				return model.Value{}, goerr.Wrap(err, "corrupt message counter")
			}
			count = n
		}
		return model.Text(strconv.FormatInt(count+1, 10)), nil
	})
}

// MessageCount returns the channel's ingested message count
func (uc *UseCases) MessageCount(ctx context.Context, channelID types.ChannelID) (int64, error) {
	value, ok, err := uc.store.Get(ctx, statsKey(channelID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(value.Text(), 10, 64)
	if err != nil {
		return 0, goerr.Wrap(err, "corrupt message counter", goerr.V("channel", channelID))
	}
	return n, nil
}

// indexMessage embeds the message and stores it in the vector index,
// tagged by channel so recall stays scoped to the conversation. Parts of
// a multi-modal message are fused by averaging (see embedding.FuseAverage).
func (uc *UseCases) indexMessage(ctx context.Context, memID types.MemoryID, msg *model.Message) {
	if uc.vectors == nil {
		return
	}

	vector, err := uc.embedMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, types.ErrNotConfigured) {
			logging.From(ctx).Debug("embeddings not configured, skipping vector index")
		} else {
			logging.From(ctx).Warn("failed to index message", "error", err.Error())
		}
		return
	}

	entry := &model.VectorEntry{
		Key:     memID.String(),
		Vector:  vector,
		Content: msg.Content,
		Tag:     msg.ChannelID.String(),
	}
	if err := uc.vectors.AddVector(ctx, uc.indexName, entry); err != nil {
		logging.From(ctx).Warn("failed to add vector entry", "error", err.Error())
	}
}

func (uc *UseCases) embedMessage(ctx context.Context, msg *model.Message) ([]float32, error) {
	vectors := make([][]float32, 0, 1+len(msg.Attachments))

	if msg.Content != "" {
		v, err := uc.embedder.Embed(ctx, msg.Content)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	for _, a := range msg.Attachments {
		if a.Description == "" {
			continue
		}
		v, err := uc.embedder.Embed(ctx, a.Description)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}

	if len(vectors) == 0 {
		return nil, goerr.New("message has no embeddable content")
	}
	return embedding.FuseAverage(vectors...)
}

// BuildContext assembles the grounding material for the next reply:
// cold-start backfill, recent short-term context, and (when configured)
// vector recall of related past exchanges for the query text.
func (uc *UseCases) BuildContext(ctx context.Context, channelID types.ChannelID, query string, limit, topK int) (*ConversationContext, error) {
	if err := uc.shortTerm.PopulateContext(ctx, channelID, 0); err != nil {
		// Backfill is best-effort; an unreachable history API must not
		// block reply generation
		logging.From(ctx).Warn("history backfill failed", "channel", channelID, "error", err.Error())
	}

	cc := &ConversationContext{
		Recent: uc.shortTerm.GetChannelContext(ctx, channelID, limit),
	}

	if query != "" {
		related, err := uc.RelatedMemories(ctx, channelID, query, topK)
		if err != nil {
			return nil, err
		}
		cc.Related = related
	}
	return cc, nil
}

// RelatedMemories returns past exchanges semantically similar to query,
// scoped to the channel. Returns an empty slice when embeddings are not
// configured.
func (uc *UseCases) RelatedMemories(ctx context.Context, channelID types.ChannelID, query string, topK int) ([]model.VectorHit, error) {
	if uc.vectors == nil || topK <= 0 {
		return []model.VectorHit{}, nil
	}

	vector, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, types.ErrNotConfigured) {
			return []model.VectorHit{}, nil
		}
		return nil, err
	}

	return uc.vectors.KNNSearch(ctx, uc.indexName, vector, topK, channelID.String())
}
