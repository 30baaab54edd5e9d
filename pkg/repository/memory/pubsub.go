package memory

import (
	"context"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
)

// subscriberBuffer bounds each subscriber's pending messages. Delivery is
// at-most-once: messages to a full subscriber are dropped, never queued
// unbounded.
const subscriberBuffer = 16

func (c *Client) Publish(ctx context.Context, channel string, value model.Value) error {
	c.mu.RLock()
	if err := c.guard(); err != nil {
		c.mu.RUnlock()
		return err
	}
	c.mu.RUnlock()

	payload := value.Encode()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, channel string, handler interfaces.SubscribeHandler) error {
	c.mu.RLock()
	if err := c.guard(); err != nil {
		c.mu.RUnlock()
		return err
	}
	c.mu.RUnlock()

	c.subMu.Lock()
	if c.subs[channel] == nil {
		c.subs[channel] = make(map[int]chan string)
	}
	c.subSeq++
	id := c.subSeq
	ch := make(chan string, subscriberBuffer)
	c.subs[channel][id] = ch
	c.subMu.Unlock()

	defer func() {
		c.subMu.Lock()
		if subs, ok := c.subs[channel]; ok {
			if _, live := subs[id]; live {
				delete(subs, id)
				close(ch)
			}
		}
		c.subMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				// Store closed
				return nil
			}
			handler(ctx, model.DecodeWire(payload))
		}
	}
}
