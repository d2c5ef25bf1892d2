package stats

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

type memHash struct {
	data map[string]map[string]int64
	err  error
	// execErr fails the transaction after every command was queued.
	execErr error
	txs     int
}

func newMemHash() *memHash {
	return &memHash{data: map[string]map[string]int64{}}
}

type queuedIncr struct {
	key, field string
	n          int64
}

// memPipe queues HIncrBy calls; every other Pipeliner method is unused.
type memPipe struct {
	redis.Pipeliner
	queued []queuedIncr
}

func (p *memPipe) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	p.queued = append(p.queued, queuedIncr{key, field, incr})
	return redis.NewIntResult(0, nil)
}

func (m *memHash) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	m.txs++
	if m.err != nil {
		return nil, m.err
	}
	pipe := &memPipe{}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	if m.execErr != nil {
		return nil, m.execErr
	}
	for _, q := range pipe.queued {
		if m.data[q.key] == nil {
			m.data[q.key] = map[string]int64{}
		}
		m.data[q.key][q.field] += q.n
	}
	return nil, nil
}

func (m *memHash) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	if m.err != nil {
		return redis.NewMapStringStringResult(nil, m.err)
	}
	out := map[string]string{}
	for k, v := range m.data[key] {
		out[k] = strconv.FormatInt(v, 10)
	}
	return redis.NewMapStringStringResult(out, nil)
}

func TestCountersRecordAndSnapshot(t *testing.T) {
	h := newMemHash()
	c := NewCounters(h, "")
	ctx := context.Background()

	records := []models.RunRecord{
		{Outcome: models.RunCompleted, Timings: models.TimingInfo{Load: 10, Separation: 100, Transcription: 200, Total: 320}},
		{Outcome: models.RunDegraded, Timings: models.TimingInfo{Load: 5, Separation: 50, Transcription: 100, Total: 160}},
		{Outcome: models.RunRejected, ErrorCategory: "invalid_format"},
		{Outcome: models.RunFailed, ErrorCategory: "processing_failed", Timings: models.TimingInfo{Load: 1, Total: 2}},
	}
	for _, rec := range records {
		if err := c.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Runs != 4 {
		t.Fatalf("runs = %d, want 4", snap.Runs)
	}
	if snap.Outcomes["completed"] != 1 || snap.Outcomes["degraded"] != 1 || snap.Outcomes["rejected"] != 1 || snap.Outcomes["failed"] != 1 {
		t.Fatalf("outcomes = %v", snap.Outcomes)
	}
	if snap.Errors["invalid_format"] != 1 || snap.Errors["processing_failed"] != 1 {
		t.Fatalf("errors = %v", snap.Errors)
	}
	if snap.StageMs["separation"] != 150 || snap.StageMs["total"] != 482 || snap.StageMs["load"] != 16 {
		t.Fatalf("stage ms = %v", snap.StageMs)
	}
	if _, ok := h.data[DefaultKey]; !ok {
		t.Fatalf("counters not stored under %s", DefaultKey)
	}
	if h.txs != len(records) {
		t.Fatalf("transactions = %d, want one per record", h.txs)
	}
}

func TestCountersRecordIsAllOrNothing(t *testing.T) {
	h := newMemHash()
	c := NewCounters(h, "")
	ctx := context.Background()

	if err := c.Record(ctx, models.RunRecord{Outcome: models.RunCompleted, Timings: models.TimingInfo{Total: 10}}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	h.execErr = errors.New("EXECABORT Transaction discarded")
	err := c.Record(ctx, models.RunRecord{
		Outcome:       models.RunFailed,
		ErrorCategory: "processing_failed",
		Timings:       models.TimingInfo{Load: 3, Total: 7},
	})
	if !errors.Is(err, h.execErr) {
		t.Fatalf("Record() error = %v, want exec error", err)
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Runs != 1 || snap.Outcomes["failed"] != 0 || snap.Errors["processing_failed"] != 0 || snap.StageMs["total"] != 10 {
		t.Fatalf("partial record applied: %+v", snap)
	}
}

func TestCountersEmptySnapshot(t *testing.T) {
	snap, err := NewCounters(newMemHash(), "custom").Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Runs != 0 || snap.Outcomes == nil || len(snap.Outcomes) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCountersPropagateRedisErrors(t *testing.T) {
	h := newMemHash()
	h.err = errors.New("dial tcp: connection refused")
	c := NewCounters(h, "")

	if err := c.Record(context.Background(), models.RunRecord{Outcome: models.RunCompleted}); !errors.Is(err, h.err) {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := c.Snapshot(context.Background()); !errors.Is(err, h.err) {
		t.Fatalf("Snapshot() error = %v", err)
	}
}
