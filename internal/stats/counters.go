// Package stats keeps cumulative run counters in a Redis hash so every
// replica reports the same totals.
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

const DefaultKey = "transcriptionsvc:runs"

// Hash is the subset of the go-redis client the counters use.
type Hash interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type Counters struct {
	client Hash
	key    string
}

func NewCounters(client Hash, key string) *Counters {
	if key == "" {
		key = DefaultKey
	}
	return &Counters{client: client, key: key}
}

// Snapshot is the aggregate view served by the stats endpoint.
type Snapshot struct {
	Runs     int64            `json:"runs"`
	Outcomes map[string]int64 `json:"outcomes"`
	Errors   map[string]int64 `json:"errors"`
	StageMs  map[string]int64 `json:"stage_ms"`
}

// Record applies every increment for rec in one MULTI/EXEC transaction.
func (c *Counters) Record(ctx context.Context, rec models.RunRecord) error {
	incr := map[string]int64{
		"runs":                           1,
		"outcome:" + string(rec.Outcome): 1,
	}
	if rec.ErrorCategory != "" {
		incr["error:"+rec.ErrorCategory] = 1
	}
	for stage, ms := range map[string]int64{
		"load":          rec.Timings.Load,
		"separation":    rec.Timings.Separation,
		"transcription": rec.Timings.Transcription,
		"total":         rec.Timings.Total,
	} {
		if ms > 0 {
			incr["ms:"+stage] = ms
		}
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, n := range incr {
			pipe.HIncrBy(ctx, c.key, field, n)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("stats incr %s: %w", c.key, err)
	}
	return nil
}

func (c *Counters) Snapshot(ctx context.Context) (Snapshot, error) {
	raw, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("stats read %s: %w", c.key, err)
	}

	snap := Snapshot{
		Outcomes: map[string]int64{},
		Errors:   map[string]int64{},
		StageMs:  map[string]int64{},
	}
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		kind, name, _ := strings.Cut(field, ":")
		switch kind {
		case "runs":
			snap.Runs = n
		case "outcome":
			snap.Outcomes[name] = n
		case "error":
			snap.Errors[name] = n
		case "ms":
			snap.StageMs[name] = n
		}
	}
	return snap, nil
}
