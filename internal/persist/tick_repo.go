package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/infinity/internal/core/engine"
)

// TickSample is one row of tick telemetry.
type TickSample struct {
	RunID      uuid.UUID
	Tick       uint64
	RecordedAt time.Time
	Duration   time.Duration
	Systems    time.Duration
	Entities   int
	Archetypes int
	Applied    int
	Skipped    int
	Failed     bool
}

// SampleOf converts engine tick stats into a telemetry row.
func SampleOf(run uuid.UUID, s engine.TickStats, failed bool) TickSample {
	return TickSample{
		RunID:      run,
		Tick:       s.Tick,
		RecordedAt: time.Now(),
		Duration:   s.Duration,
		Systems:    s.Systems,
		Entities:   s.Entities,
		Archetypes: s.Archetypes,
		Applied:    s.Applied,
		Skipped:    s.Skipped,
		Failed:     failed,
	}
}

var tickColumns = []string{
	"run_id", "tick", "recorded_at", "duration_us", "systems_us",
	"entities", "archetypes", "applied", "skipped", "failed",
}

type TickRepo struct {
	db *DB
}

func NewTickRepo(db *DB) *TickRepo {
	return &TickRepo{db: db}
}

// InsertBatch writes samples with a single COPY.
func (r *TickRepo) InsertBatch(ctx context.Context, samples []TickSample) error {
	if len(samples) == 0 {
		return nil
	}
	n, err := r.db.Pool.CopyFrom(ctx, pgx.Identifier{"tick_samples"}, tickColumns,
		pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
			s := samples[i]
			return []any{
				[16]byte(s.RunID), int64(s.Tick), s.RecordedAt,
				s.Duration.Microseconds(), s.Systems.Microseconds(),
				int32(s.Entities), int32(s.Archetypes), int32(s.Applied), int32(s.Skipped),
				s.Failed,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy tick samples: %w", err)
	}
	if int(n) != len(samples) {
		return fmt.Errorf("copy tick samples: wrote %d of %d rows", n, len(samples))
	}
	return nil
}

// CountRun returns the number of samples stored for a run.
func (r *TickRepo) CountRun(ctx context.Context, run uuid.UUID) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tick_samples WHERE run_id = $1`, [16]byte(run),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count run %s: %w", run, err)
	}
	return n, nil
}
