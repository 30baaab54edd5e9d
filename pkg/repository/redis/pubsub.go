package redis

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/safe"
)

func (c *Client) Publish(ctx context.Context, channel string, value model.Value) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, channel, value.Encode()).Err(); err != nil {
		return goerr.Wrap(err, "failed to publish message", goerr.V("channel", channel))
	}
	return nil
}

// Subscribe blocks in a receive loop, invoking handler for each message,
// until ctx is cancelled or the connection is closed.
func (c *Client) Subscribe(ctx context.Context, channel string, handler interfaces.SubscribeHandler) error {
	if err := c.guard(); err != nil {
		return err
	}

	ps := c.rdb.Subscribe(ctx, channel)
	defer safe.Close(ctx, ps)

	// Confirm the subscription so a Publish right after Subscribe returns
	// is not lost.
	if _, err := ps.Receive(ctx); err != nil {
		return goerr.Wrap(err, "failed to subscribe", goerr.V("channel", channel))
	}

	msgCh := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			handler(ctx, model.DecodeWire(msg.Payload))
		}
	}
}
