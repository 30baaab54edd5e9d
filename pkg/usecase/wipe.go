package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

const (
	wipeLockName = "memory-wipe"
	wipeLockTTL  = 30 * time.Second
)

// WipeChannel irreversibly deletes a channel's durable memories, its
// short-term buffer, and its persisted conversation list. Wipes are
// serialized through a distributed lock so two admins cannot race a wipe
// against concurrent ingestion cleanup.
func (uc *UseCases) WipeChannel(ctx context.Context, channelID types.ChannelID) (int, error) {
	release, err := uc.acquireWipeLock(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	deleted, err := uc.memories.WipeCategory(ctx, channelID.Category())
	if err != nil {
		return 0, err
	}
	if err := uc.shortTerm.Forget(ctx, channelID); err != nil {
		return deleted, goerr.Wrap(err, "wiped memories but failed to clear conversation buffer",
			goerr.V("channel", channelID))
	}

	logging.From(ctx).Info("wiped channel memories", "channel", channelID, "deleted", deleted)
	return deleted, nil
}

// WipeAll irreversibly deletes every memory record, every short-term
// buffer, and every conversation list.
func (uc *UseCases) WipeAll(ctx context.Context) (int, error) {
	release, err := uc.acquireWipeLock(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	deleted, err := uc.memories.WipeAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := uc.shortTerm.ForgetAll(ctx); err != nil {
		return deleted, goerr.Wrap(err, "wiped memories but failed to clear conversation buffers")
	}

	logging.From(ctx).Info("wiped all memories", "deleted", deleted)
	return deleted, nil
}

func (uc *UseCases) acquireWipeLock(ctx context.Context) (func(), error) {
	token, ok, err := uc.locks.AcquireLock(ctx, wipeLockName, wipeLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, goerr.Wrap(ErrWipeInProgress, "wipe lock is held")
	}
	return func() {
		if err := uc.locks.ReleaseLock(ctx, wipeLockName, token); err != nil {
			logging.From(ctx).Warn("failed to release wipe lock", "error", err.Error())
		}
	}, nil
}
