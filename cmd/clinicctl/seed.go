package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
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

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake doctors and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctors, _ := cmd.Flags().GetInt("doctors")
			patients, _ := cmd.Flags().GetInt("patients")
			capacity, _ := cmd.Flags().GetInt("capacity")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if capacity == 0 {
				capacity = cfg.DefaultCapacity
			}
			if capacity < 1 || capacity > cfg.MaxCapacity {
				return appointment.ErrInvalidCapacity
			}

			repo := appointment.NewPgRepository(pool)
			if err := seedDoctors(cmd.Context(), repo, doctors, capacity); err != nil {
				return fmt.Errorf("seed doctors: %w", err)
			}
			if err := seedPatients(cmd.Context(), repo, patients); err != nil {
				return fmt.Errorf("seed patients: %w", err)
			}

			fmt.Println("seed complete")
			return nil
		},
	}
	cmd.Flags().Int("doctors", 20, "Number of doctors to create")
	cmd.Flags().Int("patients", 500, "Number of patients to create")
	cmd.Flags().Int("capacity", 0, "Daily capacity for new doctors (default DEFAULT_CAPACITY)")
	return cmd
}

func seedDoctors(ctx context.Context, repo *appointment.PgRepository, count, capacity int) error {
	fmt.Printf("seeding %d doctors (capacity %d)\n", count, capacity)

	for i := 0; i < count; i++ {
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		location := gofakeit.URL()
		d := &appointment.Doctor{
			ID:            uuid.New(),
			Name:          "Dr. " + gofakeit.Name(),
			Specialty:     &spec,
			LocationURL:   &location,
			DailyCapacity: capacity,
			CreatedAt:     time.Now(),
		}
		if err := repo.CreateDoctor(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func seedPatients(ctx context.Context, repo *appointment.PgRepository, count int) error {
	fmt.Printf("seeding %d patients\n", count)

	for i := 0; i < count; i++ {
		p := &appointment.Patient{
			ID:        uuid.New(),
			Name:      gofakeit.Name(),
			CreatedAt: time.Now(),
		}
		if err := repo.CreatePatient(ctx, p); err != nil {
			return err
		}
		if (i+1)%100 == 0 {
			fmt.Printf("patients seeded: %d/%d\n", i+1, count)
		}
	}
	return nil
}
