package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/logging"
)

const (
	clinicCount          = 5
	professionalsPerMode = 4
	blockedTimesPerFixed = 3
	seedHorizonDays      = 14
)

var shiftTemplates = []struct {
	name       appointment.ShiftName
	start, end string
}{
	{appointment.ShiftMorning, "08:00", "12:00"},
	{appointment.ShiftAfternoon, "13:00", "17:00"},
	{appointment.ShiftEvening, "18:00", "21:00"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.PostgresDSN, true, logger)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	repo := appointment.NewPgRepository(pool)

	for i := 0; i < clinicCount; i++ {
		clinicID, err := seedClinic(ctx, pool)
		if err != nil {
			logger.Fatal("seed clinic", zap.Error(err))
		}

		for j := 0; j < professionalsPerMode; j++ {
			fixed, err := seedProfessional(ctx, pool, clinicID, appointment.ModeFixedSlot)
			if err != nil {
				logger.Fatal("seed fixed-slot professional", zap.Error(err))
			}
			if err := seedBlockedTimes(ctx, repo, fixed, cfg.Location); err != nil {
				logger.Fatal("seed blocked times", zap.Error(err))
			}

			queued, err := seedProfessional(ctx, pool, clinicID, appointment.ModeArrivalOrder)
			if err != nil {
				logger.Fatal("seed arrival-order professional", zap.Error(err))
			}
			if err := seedShifts(ctx, repo, queued); err != nil {
				logger.Fatal("seed shifts", zap.Error(err))
			}
		}

		logger.Info("clinic seeded", zap.String("clinic_id", clinicID.String()))
	}

	logger.Info("seed complete",
		zap.Int("clinics", clinicCount),
		zap.Int("professionals", clinicCount*professionalsPerMode*2),
	)
}

func seedClinic(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO clinics (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
	`, id, gofakeit.Company()+" Clinic")
	return id, err
}

func seedProfessional(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, mode appointment.SchedulingMode) (uuid.UUID, error) {
	id := uuid.New()
	durations := []int{15, 20, 30, 45}

	_, err := pool.Exec(ctx, `
		INSERT INTO professionals (id, clinic_id, name, scheduling_mode, duration_minutes,
		                           working_days, work_start, work_end, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, now(), now())
	`, id, clinicID, "Dr. "+gofakeit.Name(), string(mode), durations[gofakeit.Number(0, len(durations)-1)],
		int16(appointment.Weekdays), pgTime("08:00"), pgTime("21:00"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert professional: %w", err)
	}
	return id, nil
}

func seedShifts(ctx context.Context, repo *appointment.PgRepository, professionalID uuid.UUID) error {
	for day := time.Monday; day <= time.Friday; day++ {
		for _, tpl := range shiftTemplates {
			_, err := repo.UpsertShift(ctx, &appointment.Shift{
				ProfessionalID: professionalID,
				DayOfWeek:      day,
				Name:           tpl.name,
				Start:          appointment.MustTimeOfDay(tpl.start),
				End:            appointment.MustTimeOfDay(tpl.end),
				MaxSlots:       gofakeit.Number(8, 20),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func seedBlockedTimes(ctx context.Context, repo *appointment.PgRepository, professionalID uuid.UUID, loc *time.Location) error {
	reasons := []string{"lunch meeting", "surgery", "training", "personal"}
	today := appointment.DateOf(time.Now().In(loc))

	for i := 0; i < blockedTimesPerFixed; i++ {
		date := today.AddDate(0, 0, gofakeit.Number(1, seedHorizonDays))
		start := appointment.TimeOfDay(gofakeit.Number(9, 16) * 60)
		reason := reasons[gofakeit.Number(0, len(reasons)-1)]

		_, err := repo.CreateBlockedTime(ctx, &appointment.BlockedTime{
			ProfessionalID: professionalID,
			Date:           date,
			Start:          start,
			End:            start + 60,
			Reason:         &reason,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func pgTime(s string) pgtype.Time {
	t := appointment.MustTimeOfDay(s)
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}
