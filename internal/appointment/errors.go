package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidCapacity   = fmt.Errorf("%w: capacity must be a whole number between 1 and the clinic maximum", ErrInvalidInput)
	ErrUnauthorized      = errors.New("action not permitted for this user")
	ErrSlotTaken         = errors.New("queue slot already taken, choose another")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrClinicClosed      = errors.New("clinic is closed for new bookings")
	ErrCapacityExceeded  = errors.New("queue number exceeds the doctor's daily capacity")
	ErrStorage           = errors.New("storage failure")

	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storageErr passes domain errors through and tags everything else as ErrStorage.
func storageErr(op string, err error) error {
	for _, known := range []error{
		ErrSlotTaken,
		ErrDoctorNotFound,
		ErrPatientNotFound,
		ErrAppointmentNotFound,
		ErrStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
