package appointment

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// FreeSlots lists the queue numbers in [1, current capacity] not held by a
// non-rejected appointment for the doctor and date. A closed clinic has no
// free slots. The result is read fresh on every call.
func (s *Service) FreeSlots(ctx context.Context, doctorID uuid.UUID, date Date) ([]int, error) {
	if doctorID == uuid.Nil {
		return nil, invalidInput("doctor_id is required")
	}
	if date.IsZero() {
		return nil, invalidInput("date is required")
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, storageErr("get doctor", err)
	}
	if doctor.ClinicClosed {
		return []int{}, nil
	}

	taken, err := s.repo.TakenQueueNumbers(ctx, doctorID, date)
	if err != nil {
		return nil, storageErr("load occupancy", err)
	}
	return freeSlots(doctor, taken), nil
}

// freeSlots is {1..capacity} minus taken. Taken numbers above the current
// capacity (booked before a capacity cut) are simply outside the range.
func freeSlots(d *Doctor, taken []int) []int {
	free := []int{}
	if d.ClinicClosed {
		return free
	}

	occupied := make(map[int]struct{}, len(taken))
	for _, n := range taken {
		occupied[n] = struct{}{}
	}
	for n := 1; n <= d.DailyCapacity; n++ {
		if _, ok := occupied[n]; !ok {
			free = append(free, n)
		}
	}
	return free
}

func sortByQueue(list []AppointmentDetail) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].QueueNumber < list[j].QueueNumber
	})
}
