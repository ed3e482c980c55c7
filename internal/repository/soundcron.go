package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glizzus/harmony/internal/schedule"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UpcomingRuns is how many future runs are kept scheduled per soundcron.
const UpcomingRuns = 5

var ErrSoundCronNotFound = errors.New("soundcron not found")

type SoundCron struct {
	ID       string
	Name     string
	GuildID  string
	Cron     string
	FileSize int64
}

// SoundCronJobRow is a single scheduled run as stored.
type SoundCronJobRow struct {
	ID          int64
	SoundCronID string
	RunTime     time.Time
}

// SoundCronJob is a claimed run, ready to be played.
type SoundCronJob struct {
	SoundCronID string
	Name        string
	GuildID     string
	RunTime     time.Time
}

// SoundCronAlreadyExistsError is returned when a guild already has a
// soundcron with the same name.
type SoundCronAlreadyExistsError struct {
	GuildID string
	Name    string
}

func (e *SoundCronAlreadyExistsError) Error() string {
	return fmt.Sprintf("soundcron already exists for guild %s with name %s", e.GuildID, e.Name)
}

var _ error = (*SoundCronAlreadyExistsError)(nil)

type SoundCronPersister interface {
	Save(ctx context.Context, soundCron SoundCron) error
}

type SoundCronRepository interface {
	SoundCronPersister
	List(ctx context.Context, guildID string) ([]SoundCron, error)
	Get(ctx context.Context, guildID, id string) (SoundCron, error)
	Delete(ctx context.Context, guildID, id string) error
	Pull(ctx context.Context, before time.Time) ([]SoundCronJob, error)
}

type PostgresSoundCronRepository struct {
	db     *pgxpool.Pool
	now    func() time.Time
	logger *slog.Logger
}

func NewPostgresSoundCronRepository(db *pgxpool.Pool) *PostgresSoundCronRepository {
	return &PostgresSoundCronRepository{db: db, now: time.Now, logger: slog.Default()}
}

var _ SoundCronRepository = (*PostgresSoundCronRepository)(nil)

func SoundCronToRowParams(soundCron SoundCron) []any {
	return []any{
		soundCron.ID,
		soundCron.Name,
		soundCron.GuildID,
		soundCron.Cron,
		soundCron.FileSize,
	}
}

const insertJobsQuery = `
INSERT INTO soundcron_job (soundcron_id, run_time)
SELECT $1, unnest($2::timestamptz[])
ON CONFLICT (soundcron_id, run_time) DO NOTHING
`

func (r *PostgresSoundCronRepository) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.WarnContext(ctx, "failed to rollback transaction", "error", err)
	}
}

// Save inserts or replaces a soundcron and schedules its next runs. Changing
// the cron of an existing soundcron drops the runs of the old schedule.
func (r *PostgresSoundCronRepository) Save(ctx context.Context, soundCron SoundCron) error {
	const soundCronQuery = `
	INSERT INTO soundcron (id, soundcron_name, guild_id, cron, file_size)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		soundcron_name = EXCLUDED.soundcron_name,
		guild_id = EXCLUDED.guild_id,
		cron = EXCLUDED.cron,
		file_size = EXCLUDED.file_size
	`

	nextTimes, err := schedule.NextRunTimesAfter(soundCron.Cron, r.now().UTC(), UpcomingRuns)
	if err != nil {
		return fmt.Errorf("failed to get next run times: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(ctx, tx)

	_, err = tx.Exec(ctx, soundCronQuery, SoundCronToRowParams(soundCron)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &SoundCronAlreadyExistsError{GuildID: soundCron.GuildID, Name: soundCron.Name}
		}
		return fmt.Errorf("failed to execute sound cron query: %w", err)
	}

	_, err = tx.Exec(ctx, "DELETE FROM soundcron_job WHERE soundcron_id = $1", soundCron.ID)
	if err != nil {
		return fmt.Errorf("failed to clear previous jobs: %w", err)
	}

	_, err = tx.Exec(ctx, insertJobsQuery, soundCron.ID, nextTimes)
	if err != nil {
		return fmt.Errorf("failed to execute sound cron jobs query: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *PostgresSoundCronRepository) List(ctx context.Context, guildID string) ([]SoundCron, error) {
	const query = `
	SELECT id, soundcron_name, guild_id, cron, file_size
	FROM soundcron
	WHERE guild_id = $1
	ORDER BY soundcron_name
	`
	rows, err := r.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list soundcrons: %w", err)
	}
	soundCrons, err := pgx.CollectRows(rows, scanSoundCron)
	if err != nil {
		return nil, fmt.Errorf("failed to scan soundcrons: %w", err)
	}
	return soundCrons, nil
}

func scanSoundCron(row pgx.CollectableRow) (SoundCron, error) {
	var sc SoundCron
	err := row.Scan(&sc.ID, &sc.Name, &sc.GuildID, &sc.Cron, &sc.FileSize)
	return sc, err
}

// Get returns a soundcron of the guild. Soundcrons of other guilds are
// reported as not found.
func (r *PostgresSoundCronRepository) Get(ctx context.Context, guildID, id string) (SoundCron, error) {
	const query = `
	SELECT id, soundcron_name, guild_id, cron, file_size
	FROM soundcron
	WHERE guild_id = $1 AND id = $2
	`
	rows, err := r.db.Query(ctx, query, guildID, id)
	if err != nil {
		return SoundCron{}, fmt.Errorf("failed to get soundcron: %w", err)
	}
	sc, err := pgx.CollectExactlyOneRow(rows, scanSoundCron)
	if errors.Is(err, pgx.ErrNoRows) {
		return SoundCron{}, ErrSoundCronNotFound
	}
	if err != nil {
		return SoundCron{}, fmt.Errorf("failed to scan soundcron: %w", err)
	}
	return sc, nil
}

// Delete removes a soundcron of the guild along with its scheduled runs.
func (r *PostgresSoundCronRepository) Delete(ctx context.Context, guildID, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM soundcron WHERE guild_id = $1 AND id = $2", guildID, id)
	if err != nil {
		return fmt.Errorf("failed to delete soundcron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSoundCronNotFound
	}
	return nil
}

// Pull claims every run due before the given time and tops up the schedule
// of each affected soundcron. A claimed run is never returned twice, even to
// concurrent callers.
func (r *PostgresSoundCronRepository) Pull(ctx context.Context, before time.Time) ([]SoundCronJob, error) {
	const claimQuery = `
	DELETE FROM soundcron_job j
	USING soundcron s
	WHERE j.soundcron_id = s.id AND j.run_time <= $1
	RETURNING s.id, s.soundcron_name, s.guild_id, s.cron, j.run_time
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(ctx, tx)

	rows, err := tx.Query(ctx, claimQuery, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}

	type claimed struct {
		job  SoundCronJob
		cron string
	}
	claims, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (claimed, error) {
		var c claimed
		err := row.Scan(&c.job.SoundCronID, &c.job.Name, &c.job.GuildID, &c.cron, &c.job.RunTime)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan claimed jobs: %w", err)
	}

	latest := make(map[string]claimed)
	jobs := make([]SoundCronJob, 0, len(claims))
	for _, c := range claims {
		jobs = append(jobs, c.job)
		if prev, ok := latest[c.job.SoundCronID]; !ok || c.job.RunTime.After(prev.job.RunTime) {
			latest[c.job.SoundCronID] = c
		}
	}

	for id, c := range latest {
		after := c.job.RunTime
		if now := r.now().UTC(); now.After(after) {
			after = now
		}
		nextTimes, err := schedule.NextRunTimesAfter(c.cron, after, UpcomingRuns)
		if err != nil {
			return nil, fmt.Errorf("failed to reschedule soundcron %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, insertJobsQuery, id, nextTimes); err != nil {
			return nil, fmt.Errorf("failed to reschedule soundcron %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return jobs, nil
}

// UpcomingJobs lists the scheduled runs of a soundcron in order.
func (r *PostgresSoundCronRepository) UpcomingJobs(ctx context.Context, soundCronID string) ([]SoundCronJobRow, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, soundcron_id, run_time FROM soundcron_job WHERE soundcron_id = $1 ORDER BY run_time",
		soundCronID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SoundCronJobRow, error) {
		var j SoundCronJobRow
		err := row.Scan(&j.ID, &j.SoundCronID, &j.RunTime)
		return j, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return jobs, nil
}
