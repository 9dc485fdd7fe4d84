package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

// SetCapacity changes a doctor's daily capacity and/or closed flag. Only the
// doctor may change their own settings. Omitted fields are merged with the
// stored row inside the update, so concurrent partial updates do not clobber
// each other. Existing appointments are untouched, including those whose
// queue number is now above the new capacity; only later slot computations
// use the new value.
func (s *Service) SetCapacity(ctx context.Context, actor Actor, doctorID uuid.UUID, settings DoctorSettings) (*Doctor, error) {
	if !actor.IsDoctor(doctorID) {
		return nil, ErrUnauthorized
	}
	if settings.DailyCapacity == nil && settings.ClinicClosed == nil {
		return nil, invalidInput("daily_capacity or clinic_closed is required")
	}

	payload := map[string]any{}
	if c := settings.DailyCapacity; c != nil {
		if *c < 1 || *c > s.maxCapacity {
			return nil, ErrInvalidCapacity
		}
		payload["daily_capacity"] = *c
	}
	if settings.ClinicClosed != nil {
		payload["clinic_closed"] = *settings.ClinicClosed
	}

	ev := s.newEvent(events.DoctorSettingsChanged, doctorID, nil, nil, payload)

	d, err := s.repo.UpdateDoctorSettings(ctx, doctorID, settings, ev)
	if err != nil {
		return nil, storageErr("update doctor settings", err)
	}

	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Int("daily_capacity", d.DailyCapacity).
		Bool("clinic_closed", d.ClinicClosed).
		Msg("doctor settings updated")
	return d, nil
}
