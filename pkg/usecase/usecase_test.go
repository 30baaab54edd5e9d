package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/vector"
	"github.com/mnemo-lab/mnemosyne/pkg/service/embedding"
	"github.com/mnemo-lab/mnemosyne/pkg/service/shortterm"
	"github.com/mnemo-lab/mnemosyne/pkg/usecase"
)

const testChannel = types.ChannelID("C0123456789")

type mockLLMClient struct {
	generateEmbeddingFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (m *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return nil, nil
}

func (m *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if m.generateEmbeddingFn != nil {
		return m.generateEmbeddingFn(ctx, dimension, input)
	}
	vec := make([]float64, dimension)
	for i := range vec {
		vec[i] = 0.1
	}
	return [][]float64{vec}, nil
}

func newMessage(author, content string) *model.Message {
	return &model.Message{
		AuthorID:  author,
		Content:   content,
		Timestamp: time.Now().UTC(),
		ChannelID: testChannel,
	}
}

// newUseCases wires the full ingestion path over in-process backends with
// a deterministic embedding provider.
func newUseCases(t *testing.T) (*memory.Client, *usecase.UseCases) {
	t.Helper()

	store := memory.New()
	embedder := embedding.New(&mockLLMClient{
		generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
			// Deterministic per-text vector so related lookups are stable
			vec := make([]float64, dimension)
			for _, s := range input[0] {
				vec[int(s)%dimension] += 1
			}
			return [][]float64{vec}, nil
		},
	}, 8)

	uc := usecase.New(store,
		usecase.WithVectors(vector.NewFallback(store)),
		usecase.WithEmbedder(embedder),
		usecase.WithShortTerm(shortterm.New()),
	)
	gt.NoError(t, uc.EnsureIndex(context.Background())).Required()
	return store, uc
}

func TestHandleMessage(t *testing.T) {
	t.Run("persists, counts and indexes one turn", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		memID, err := uc.HandleMessage(ctx, newMessage("alice", "the deadline moved to friday"))
		gt.NoError(t, err).Required()
		gt.String(t, memID.String()).NotEqual("")

		// Durable record lives in the channel's category
		mem, err := uc.Memories().Get(ctx, testChannel.Category(), memID)
		gt.NoError(t, err).Required()
		gt.Value(t, mem.Metadata["author_id"]).Equal("alice")
		gt.Value(t, mem.Metadata["is_bot"]).Equal("false")

		var content struct {
			Author string `json:"author"`
			Text   string `json:"text"`
		}
		gt.NoError(t, mem.Content.Decode(&content)).Required()
		gt.Value(t, content.Text).Equal("the deadline moved to friday")

		// Short-term buffer sees the turn immediately
		gt.Value(t, uc.ShortTerm().Len(testChannel)).Equal(1)

		// Stats counter tracks ingestion
		n, err := uc.MessageCount(ctx, testChannel)
		gt.NoError(t, err).Required()
		gt.Value(t, n).Equal(int64(1))
	})

	t.Run("counter accumulates across turns", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := uc.HandleMessage(ctx, newMessage("alice", "hello"))
			gt.NoError(t, err).Required()
		}

		n, err := uc.MessageCount(ctx, testChannel)
		gt.NoError(t, err).Required()
		gt.Value(t, n).Equal(int64(3))
	})

	t.Run("message without channel is rejected", func(t *testing.T) {
		_, uc := newUseCases(t)

		_, err := uc.HandleMessage(context.Background(), &model.Message{AuthorID: "alice", Content: "x"})
		gt.Value(t, err).NotNil()
	})

	t.Run("missing embedder degrades to skipping the index", func(t *testing.T) {
		store := memory.New()
		uc := usecase.New(store,
			usecase.WithVectors(vector.NewFallback(store)),
			usecase.WithEmbedder(embedding.New(nil, 8)),
		)
		ctx := context.Background()

		memID, err := uc.HandleMessage(ctx, newMessage("alice", "no embeddings here"))
		gt.NoError(t, err).Required()

		_, err = uc.Memories().Get(ctx, testChannel.Category(), memID)
		gt.NoError(t, err)
	})
}

func TestBuildContext(t *testing.T) {
	t.Run("recent turns plus related recall", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		_, err := uc.HandleMessage(ctx, newMessage("alice", "release planning for march"))
		gt.NoError(t, err).Required()
		_, err = uc.HandleMessage(ctx, newMessage("bob", "lunch order thread"))
		gt.NoError(t, err).Required()

		cc, err := uc.BuildContext(ctx, testChannel, "release planning for march", 10, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, cc.Recent).Length(2)
		gt.Array(t, cc.Related).Length(1)
		gt.Value(t, cc.Related[0].Content).Equal("release planning for march")
	})

	t.Run("empty query skips vector recall", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		_, err := uc.HandleMessage(ctx, newMessage("alice", "hello"))
		gt.NoError(t, err).Required()

		cc, err := uc.BuildContext(ctx, testChannel, "", 10, 5)
		gt.NoError(t, err).Required()
		gt.Array(t, cc.Recent).Length(1)
		gt.Array(t, cc.Related).Length(0)
	})
}

func TestRelatedMemories(t *testing.T) {
	t.Run("recall is scoped to the channel tag", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		_, err := uc.HandleMessage(ctx, newMessage("alice", "topic in this channel"))
		gt.NoError(t, err).Required()

		other := newMessage("bob", "topic in this channel")
		other.ChannelID = "C9999999999"
		_, err = uc.HandleMessage(ctx, other)
		gt.NoError(t, err).Required()

		hits, err := uc.RelatedMemories(ctx, testChannel, "topic in this channel", 10)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1)
	})

	t.Run("empty when embeddings are not configured", func(t *testing.T) {
		store := memory.New()
		uc := usecase.New(store,
			usecase.WithVectors(vector.NewFallback(store)),
			usecase.WithEmbedder(embedding.New(nil, 8)),
		)

		hits, err := uc.RelatedMemories(context.Background(), testChannel, "anything", 5)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(0)
	})

	t.Run("empty when no vector backend is wired", func(t *testing.T) {
		uc := usecase.New(memory.New())

		hits, err := uc.RelatedMemories(context.Background(), testChannel, "anything", 5)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(0)
	})
}

func TestWipeChannel(t *testing.T) {
	t.Run("clears durable records and the short-term buffer", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		_, err := uc.HandleMessage(ctx, newMessage("alice", "to be wiped"))
		gt.NoError(t, err).Required()
		_, err = uc.HandleMessage(ctx, newMessage("bob", "also wiped"))
		gt.NoError(t, err).Required()

		deleted, err := uc.WipeChannel(ctx, testChannel)
		gt.NoError(t, err).Required()
		gt.Value(t, deleted).Equal(2)

		n, err := uc.Memories().Count(ctx, testChannel.Category())
		gt.NoError(t, err).Required()
		gt.Value(t, n).Equal(0)
		gt.Value(t, uc.ShortTerm().Len(testChannel)).Equal(0)
	})

	t.Run("held lock surfaces ErrWipeInProgress", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		_, ok, err := uc.Locks().AcquireLock(ctx, "memory-wipe", time.Minute)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()

		_, err = uc.WipeChannel(ctx, testChannel)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, usecase.ErrWipeInProgress)).True()
	})

	t.Run("lock is released after a wipe", func(t *testing.T) {
		_, uc := newUseCases(t)
		ctx := context.Background()

		_, err := uc.WipeChannel(ctx, testChannel)
		gt.NoError(t, err).Required()

		// A second wipe must not see a stale lock
		_, err = uc.WipeChannel(ctx, testChannel)
		gt.NoError(t, err)
	})
}

func TestWipeAll(t *testing.T) {
	_, uc := newUseCases(t)
	ctx := context.Background()

	_, err := uc.HandleMessage(ctx, newMessage("alice", "channel one"))
	gt.NoError(t, err).Required()

	other := newMessage("bob", "channel two")
	other.ChannelID = "C9999999999"
	_, err = uc.HandleMessage(ctx, other)
	gt.NoError(t, err).Required()

	deleted, err := uc.WipeAll(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, deleted).Equal(2)

	gt.Value(t, uc.ShortTerm().Len(testChannel)).Equal(0)
	gt.Value(t, uc.ShortTerm().Len("C9999999999")).Equal(0)
}
