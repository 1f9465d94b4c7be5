package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation = "23505"

	fixedSlotIndex     = "ux_appointments_fixed_slot"
	queuePositionIndex = "ux_appointments_queue_position"
	shiftUniqueKey     = "shifts_professional_day_name_key"
)

const appointmentColumns = `id, professional_id, clinic_id, date, time, shift_name, status, queue_position,
	patient_name, patient_email, patient_phone, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Duration() / time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond / time.Minute)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// queueLockKey names the advisory lock serializing capacity checks and position
// assignment within one (professional, date, shift).
func queueLockKey(professionalID uuid.UUID, date time.Time, shift ShiftName) string {
	return fmt.Sprintf("queue:%s:%s:%s", professionalID, FormatDate(date), shift)
}

func lockQueue(ctx context.Context, tx pgx.Tx, professionalID uuid.UUID, date time.Time, shift ShiftName) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		queueLockKey(professionalID, date, shift))
	if err != nil {
		return fmt.Errorf("acquire queue lock: %w", err)
	}
	return nil
}

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	var mode string
	var workingDays int16
	var start, end pgtype.Time
	var calendarID *string

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&mode,
		&p.DurationMinutes,
		&workingDays,
		&start,
		&end,
		&p.Active,
		&calendarID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}

	p.Mode = SchedulingMode(mode)
	p.WorkingDays = WeekdaySet(workingDays)
	p.WorkStart = fromPgTime(start)
	p.WorkEnd = fromPgTime(end)
	p.ExternalCalendarID = calendarID
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slot pgtype.Time
	var shift *string
	var status string
	var position *int32

	err := row.Scan(
		&a.ID,
		&a.ProfessionalID,
		&a.ClinicID,
		&a.Date,
		&slot,
		&shift,
		&status,
		&position,
		&a.Patient.Name,
		&a.Patient.Email,
		&a.Patient.Phone,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	if slot.Valid {
		t := fromPgTime(slot)
		a.Time = &t
	}
	if shift != nil {
		n := ShiftName(*shift)
		a.ShiftName = &n
	}
	if position != nil {
		p := int(*position)
		a.QueuePosition = &p
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanShift(row pgx.Row) (*Shift, error) {
	var s Shift
	var day int16
	var name string
	var start, end pgtype.Time

	err := row.Scan(
		&s.ID,
		&s.ProfessionalID,
		&day,
		&name,
		&start,
		&end,
		&s.MaxSlots,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShiftNotFound
		}
		return nil, err
	}

	s.DayOfWeek = time.Weekday(day)
	s.Name = ShiftName(name)
	s.Start = fromPgTime(start)
	s.End = fromPgTime(end)
	return &s, nil
}

func scanBlockedTime(row pgx.Row) (*BlockedTime, error) {
	var b BlockedTime
	var start, end pgtype.Time

	err := row.Scan(
		&b.ID,
		&b.ProfessionalID,
		&b.Date,
		&start,
		&end,
		&b.Reason,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockedTimeNotFound
		}
		return nil, err
	}

	b.Start = fromPgTime(start)
	b.End = fromPgTime(end)
	return &b, nil
}

// Interface methods

func (r *PgRepository) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, scheduling_mode, duration_minutes, working_days,
		       work_start, work_end, active, external_calendar_id, created_at, updated_at
		FROM professionals
		WHERE id = $1
	`, id)
	return scanProfessional(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		  AND date = $2
		  AND status <> 'cancelled'
		ORDER BY time NULLS LAST, queue_position NULLS LAST, created_at
	`, professionalID, DateOf(date))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListBlockedTimes(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]BlockedTime, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, date, start_time, end_time, reason, created_at
		FROM blocked_times
		WHERE professional_id = $1
		  AND date = $2
		ORDER BY start_time
	`, professionalID, DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedTime
	for rows.Next() {
		b, err := scanBlockedTime(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListShifts(ctx context.Context, professionalID uuid.UUID, weekday time.Weekday) ([]Shift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, day_of_week, shift_name, start_time, end_time, max_slots, created_at, updated_at
		FROM shifts
		WHERE professional_id = $1
		  AND day_of_week = $2
		ORDER BY start_time
	`, professionalID, int16(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Shift
	for rows.Next() {
		s, err := scanShift(rows)
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

// InsertFixedSlotAppointment relies on ux_appointments_fixed_slot: of two concurrent
// inserts for the same time, exactly one succeeds.
func (r *PgRepository) InsertFixedSlotAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.Time == nil {
		return nil, fmt.Errorf("%w: fixed-slot appointment without time", ErrValidation)
	}
	created, err := insertAppointment(ctx, r.pool, a)
	if err != nil {
		if isUniqueViolation(err, fixedSlotIndex) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

// InsertShiftAppointment counts and inserts under the shift's advisory lock, so the
// count it checks cannot change before the insert commits.
func (r *PgRepository) InsertShiftAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.ShiftName == nil {
		return nil, fmt.Errorf("%w: arrival-order appointment without shift", ErrValidation)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockQueue(ctx, tx, a.ProfessionalID, a.Date, *a.ShiftName); err != nil {
		return nil, err
	}

	var maxSlots int
	err = tx.QueryRow(ctx, `
		SELECT max_slots
		FROM shifts
		WHERE professional_id = $1
		  AND day_of_week = $2
		  AND shift_name = $3
	`, a.ProfessionalID, int16(a.Date.Weekday()), string(*a.ShiftName)).Scan(&maxSlots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShiftNotFound
		}
		return nil, fmt.Errorf("load shift capacity: %w", err)
	}

	var booked int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE professional_id = $1
		  AND date = $2
		  AND shift_name = $3
		  AND status <> 'cancelled'
	`, a.ProfessionalID, DateOf(a.Date), string(*a.ShiftName)).Scan(&booked)
	if err != nil {
		return nil, fmt.Errorf("count shift bookings: %w", err)
	}
	if booked >= maxSlots {
		return nil, ErrShiftFull
	}

	created, err := insertAppointment(ctx, tx, a)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAppointment(ctx context.Context, q queryRower, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var slot pgtype.Time
	if a.Time != nil {
		slot = toPgTime(*a.Time)
	}
	var shift *string
	if a.ShiftName != nil {
		s := string(*a.ShiftName)
		shift = &s
	}

	row := q.QueryRow(ctx, `
		INSERT INTO appointments (id, professional_id, clinic_id, date, time, shift_name, status,
		                          queue_position, patient_name, patient_email, patient_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', NULL, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		id, a.ProfessionalID, a.ClinicID, DateOf(a.Date), slot, shift,
		a.Patient.Name, a.Patient.Email, a.Patient.Phone)

	return scanAppointment(row)
}

// ApplyQueueAction locks the appointment row, checks the transition against the
// current status and writes the result. Position assignment additionally holds the
// shift's advisory lock, so concurrent arrivals receive distinct consecutive numbers.
// The returned status is the one read under the row lock, before the transition.
func (r *PgRepository) ApplyQueueAction(ctx context.Context, id uuid.UUID, action QueueAction) (*Appointment, AppointmentStatus, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, "", err
	}

	t, err := planTransition(a, action)
	if err != nil {
		return nil, "", err
	}

	var position *int
	switch t.position {
	case positionKeep:
		position = a.QueuePosition
	case positionAssign:
		if err := lockQueue(ctx, tx, a.ProfessionalID, a.Date, *a.ShiftName); err != nil {
			return nil, "", err
		}
		held, err := heldPositions(ctx, tx, a)
		if err != nil {
			return nil, "", err
		}
		next := nextQueuePosition(held)
		position = &next
	case positionClear:
		position = nil
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    queue_position = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, string(t.to), position))
	if err != nil {
		if isUniqueViolation(err, queuePositionIndex) {
			return nil, "", fmt.Errorf("queue position conflict: %w", err)
		}
		return nil, "", fmt.Errorf("update appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit tx: %w", err)
	}
	return updated, a.Status, nil
}

func heldPositions(ctx context.Context, tx pgx.Tx, a *Appointment) ([]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT queue_position
		FROM appointments
		WHERE professional_id = $1
		  AND date = $2
		  AND shift_name = $3
		  AND queue_position IS NOT NULL
	`, a.ProfessionalID, DateOf(a.Date), string(*a.ShiftName))
	if err != nil {
		return nil, fmt.Errorf("load queue positions: %w", err)
	}

	held, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("scan queue positions: %w", err)
	}
	return held, nil
}

func (r *PgRepository) CreateBlockedTime(ctx context.Context, b *BlockedTime) (*BlockedTime, error) {
	id := b.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO blocked_times (id, professional_id, date, start_time, end_time, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, professional_id, date, start_time, end_time, reason, created_at
	`, id, b.ProfessionalID, DateOf(b.Date), toPgTime(b.Start), toPgTime(b.End), b.Reason)

	return scanBlockedTime(row)
}

func (r *PgRepository) DeleteBlockedTime(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM blocked_times WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockedTimeNotFound
	}
	return nil
}

func (r *PgRepository) UpsertShift(ctx context.Context, s *Shift) (*Shift, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO shifts (id, professional_id, day_of_week, shift_name, start_time, end_time, max_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT ON CONSTRAINT `+shiftUniqueKey+` DO UPDATE
		SET start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    max_slots = EXCLUDED.max_slots,
		    updated_at = now()
		RETURNING id, professional_id, day_of_week, shift_name, start_time, end_time, max_slots, created_at, updated_at
	`, id, s.ProfessionalID, int16(s.DayOfWeek), string(s.Name), toPgTime(s.Start), toPgTime(s.End), s.MaxSlots)

	return scanShift(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
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
