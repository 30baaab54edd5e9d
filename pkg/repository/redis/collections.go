package redis

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
)

func encodeAll(values []model.Value) []any {
	encoded := make([]any, len(values))
	for i, v := range values {
		encoded[i] = v.Encode()
	}
	return encoded
}

func decodeAll(raws []string) []model.Value {
	values := make([]model.Value, len(raws))
	for i, raw := range raws {
		values[i] = model.DecodeWire(raw)
	}
	return values
}

func (c *Client) ListPush(ctx context.Context, key string, values ...model.Value) error {
	if err := c.guard(); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if err := c.rdb.RPush(ctx, key, encodeAll(values)...).Err(); err != nil {
		return goerr.Wrap(err, "failed to push to list", goerr.V("key", key))
	}
	return nil
}

func (c *Client) ListRange(ctx context.Context, key string, start, stop int64) ([]model.Value, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	raws, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to range list", goerr.V("key", key))
	}
	return decodeAll(raws), nil
}

func (c *Client) ListLen(ctx context.Context, key string) (int64, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get list length", goerr.V("key", key))
	}
	return n, nil
}

func (c *Client) SetAdd(ctx context.Context, key string, members ...model.Value) error {
	if err := c.guard(); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	if err := c.rdb.SAdd(ctx, key, encodeAll(members)...).Err(); err != nil {
		return goerr.Wrap(err, "failed to add set members", goerr.V("key", key))
	}
	return nil
}

func (c *Client) SetRemove(ctx context.Context, key string, members ...model.Value) error {
	if err := c.guard(); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	if err := c.rdb.SRem(ctx, key, encodeAll(members)...).Err(); err != nil {
		return goerr.Wrap(err, "failed to remove set members", goerr.V("key", key))
	}
	return nil
}

func (c *Client) SetMembers(ctx context.Context, key string) ([]model.Value, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	raws, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get set members", goerr.V("key", key))
	}
	return decodeAll(raws), nil
}

func (c *Client) HashSet(ctx context.Context, key, field string, value model.Value) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.rdb.HSet(ctx, key, field, value.Encode()).Err(); err != nil {
		return goerr.Wrap(err, "failed to set hash field", goerr.V("key", key), goerr.V("field", field))
	}
	return nil
}

func (c *Client) HashGet(ctx context.Context, key, field string) (model.Value, bool, error) {
	if err := c.guard(); err != nil {
		return model.Value{}, false, err
	}
	raw, err := c.rdb.HGet(ctx, key, field).Result()
	if err == goredis.Nil {
		return model.Value{}, false, nil
	}
	if err != nil {
		return model.Value{}, false, goerr.Wrap(err, "failed to get hash field", goerr.V("key", key), goerr.V("field", field))
	}
	return model.DecodeWire(raw), true, nil
}

func (c *Client) HashGetAll(ctx context.Context, key string) (map[string]model.Value, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	raws, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get hash", goerr.V("key", key))
	}
	result := make(map[string]model.Value, len(raws))
	for field, raw := range raws {
		result[field] = model.DecodeWire(raw)
	}
	return result, nil
}

func (c *Client) HashDelete(ctx context.Context, key string, fields ...string) error {
	if err := c.guard(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	if err := c.rdb.HDel(ctx, key, fields...).Err(); err != nil {
		return goerr.Wrap(err, "failed to delete hash fields", goerr.V("key", key))
	}
	return nil
}
