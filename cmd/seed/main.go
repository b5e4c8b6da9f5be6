package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/doctor"
	"github.com/hackgods/telemed-scheduling/internal/logging"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// shifts are the working windows a seeded doctor may get on a weekday.
var shifts = [][2]string{
	{"08:00", "12:00"},
	{"09:00", "17:00"},
	{"13:00", "18:30"},
	{"10:00", "14:45"},
	{"18:00", "21:00"},
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("APP_ENV"), "info").With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDoctors(ctx, pool, faker, logger, 100); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}

	logger.Info().Msg("seed complete")
}

func randomAvailability(faker *gofakeit.Faker) schedule.Availability {
	av := schedule.Availability{}
	for d := time.Monday; d <= time.Saturday; d++ {
		if faker.Float64() < 0.3 {
			continue
		}
		shift := shifts[faker.Number(0, len(shifts)-1)]
		w, err := schedule.NewWindow(shift[0], shift[1])
		if err != nil {
			panic(err)
		}
		_ = av.Add(d, w)
	}
	return av
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	verified := 0
	for i := 0; i < count; i++ {
		first, last := faker.FirstName(), faker.LastName()
		name := fmt.Sprintf("Dr. %s %s", first, last)
		email := strings.ToLower(fmt.Sprintf("%s.%s.%d@clinic.test", first, last, i))
		specialty := specialties[faker.Number(0, len(specialties)-1)]

		status := doctor.VerificationVerified
		switch r := faker.Float64(); {
		case r < 0.1:
			status = doctor.VerificationPending
		case r < 0.15:
			status = doctor.VerificationRejected
		default:
			verified++
		}

		timings, err := json.Marshal(randomAvailability(faker))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, specialty, verification_status, timings, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, uuid.New(), name, email, specialty, string(status), timings)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Int("count", count).Int("verified", verified).Msg("doctors seeded")
	return nil
}
