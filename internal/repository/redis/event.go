package redis

import (
	"bytes"
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/studio/internal/events"
	"github.com/vmihailenco/msgpack/v5"
)

const eventStreamKey = "studio:events"

// Append implements events.Sink. Entries are msgpack encoded and the stream is trimmed
// to roughly EventLogMaxLen entries.
func (r *Repo) Append(ctx context.Context, ev events.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	if err := r.rc.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey,
		MaxLen: r.cfg.EventLogMaxLen,
		Approx: true,
		Values: map[string]any{
			"seq":     ev.Seq,
			"kind":    string(ev.Kind),
			"session": ev.SessionID,
			"data":    data,
		},
	}).Err(); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// Recent returns up to n of the latest events, oldest first.
func (r *Repo) Recent(ctx context.Context, n int) ([]events.Event, error) {
	r.logger.DebugContext(ctx, "called", "n", n)
	if n <= 0 {
		n = 100
	}

	msgs, err := r.rc.XRevRangeN(ctx, eventStreamKey, "+", "-", int64(n)).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	out := make([]events.Event, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		ev, err := decodeEvent([]byte(raw))
		if err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable event", "id", msgs[i].ID, "error", err)
			continue
		}
		out = append(out, ev)
	}

	return out, nil
}

// Payloads are encoded through their json tags so the log reads like the push channel.
func encodeEvent(ev events.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(ev); err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEvent(data []byte) (events.Event, error) {
	var ev events.Event
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&ev); err != nil {
		return events.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return ev, nil
}
