package slotqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const slotColumns = `id, owner_id, slot_date, start_minute, end_minute, period, capacity,
	avg_consultation_minutes, active, recurrence_batch_id, session_started, serving_token_id,
	token_count, processed_count, version, created_at, updated_at`

const tokenColumns = `id, slot_id, token_index, participant_id, status, serving_started_at,
	actual_duration_minutes, booked_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var start, end int
	var capacity *int

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.Date,
		&start,
		&end,
		&s.Period,
		&capacity,
		&s.AverageMinutes,
		&s.Active,
		&s.RecurrenceBatchID,
		&s.Queue.SessionStarted,
		&s.Queue.ServingTokenID,
		&s.Queue.TokenCount,
		&s.Queue.ProcessedCount,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Date = CalendarDate(s.Date)
	s.StartTime = TimeOfDay(start)
	s.EndTime = TimeOfDay(end)
	if capacity != nil {
		s.Capacity = LimitOf(*capacity)
	}
	return &s, nil
}

func scanToken(row pgx.Row) (*Token, error) {
	var t Token

	err := row.Scan(
		&t.ID,
		&t.SlotID,
		&t.Index,
		&t.ParticipantID,
		&t.Status,
		&t.ServingStartedAt,
		&t.ActualMinutes,
		&t.BookedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func capacityArg(c Capacity) *int {
	if n, ok := c.Limit(); ok {
		return &n
	}
	return nil
}

// Interface methods

func (r *PgRepository) CreateSlots(ctx context.Context, slots []Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_slots (`+slotColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`, s.ID, s.OwnerID, s.Date, int(s.StartTime), int(s.EndTime), s.Period, capacityArg(s.Capacity),
			s.AverageMinutes, s.Active, s.RecurrenceBatchID, s.Queue.SessionStarted, s.Queue.ServingTokenID,
			s.Queue.TokenCount, s.Queue.ProcessedCount, s.Version, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert slot %s: %w", s.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByOwner(ctx context.Context, ownerID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE owner_id = $1 AND slot_date = $2
		ORDER BY start_minute, created_at, id
	`, ownerID, CalendarDate(date))
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListSlotsByDate(ctx context.Context, date time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE slot_date = $1
		ORDER BY start_minute, created_at, id
	`, CalendarDate(date))
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) GetToken(ctx context.Context, id uuid.UUID) (*Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE id = $1
	`, id)
	return scanToken(row)
}

func (r *PgRepository) LoadQueue(ctx context.Context, slotID uuid.UUID) (*Slot, []Token, error) {
	// One repeatable-read snapshot so the slot row and its tokens agree.
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	slot, err := scanSlot(tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, slotID))
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE slot_id = $1
		ORDER BY token_index
	`, slotID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return slot, tokens, tx.Commit(ctx)
}

func (r *PgRepository) SaveQueue(ctx context.Context, slot Slot, changed []Token, expectedVersion int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE availability_slots
		SET slot_date = $2,
		    start_minute = $3,
		    end_minute = $4,
		    period = $5,
		    capacity = $6,
		    avg_consultation_minutes = $7,
		    active = $8,
		    session_started = $9,
		    serving_token_id = $10,
		    token_count = $11,
		    processed_count = $12,
		    version = $13,
		    updated_at = $14
		WHERE id = $1
		  AND version = $15
	`, slot.ID, slot.Date, int(slot.StartTime), int(slot.EndTime), slot.Period, capacityArg(slot.Capacity),
		slot.AverageMinutes, slot.Active, slot.Queue.SessionStarted, slot.Queue.ServingTokenID,
		slot.Queue.TokenCount, slot.Queue.ProcessedCount, slot.Version, slot.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, tx, slot.ID)
	}

	for _, t := range changed {
		_, err := tx.Exec(ctx, `
			INSERT INTO tokens (`+tokenColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
			    serving_started_at = EXCLUDED.serving_started_at,
			    actual_duration_minutes = EXCLUDED.actual_duration_minutes,
			    updated_at = EXCLUDED.updated_at
		`, t.ID, t.SlotID, t.Index, t.ParticipantID, t.Status, t.ServingStartedAt,
			t.ActualMinutes, t.BookedAt, t.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: token %d collides with a concurrent write", ErrConcurrencyConflict, t.Index)
			}
			return fmt.Errorf("upsert token %s: %w", t.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// tokens go with the slot through ON DELETE CASCADE
	tag, err := tx.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE id = $1
		  AND version = $2
	`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, tx, id)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) missingOrStale(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM availability_slots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrSlotNotFound
	}
	return ErrVersionMismatch
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, slot_id, token_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.SlotID, ev.TokenID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
