package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

// memRepository is an in-memory Repository. It enforces the active-slot
// uniqueness rule under its mutex the way the database index does.
type memRepository struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	events       []events.Event

	patientLookups int
	// beforeInsert runs after the slot check passed, outside the lock.
	beforeInsert func()
}

func newMemRepository() *memRepository {
	return &memRepository{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *memRepository) addDoctor(capacity int) Doctor {
	d := Doctor{ID: uuid.New(), Name: "Dr. Test", DailyCapacity: capacity, CreatedAt: time.Now()}
	_ = m.CreateDoctor(context.Background(), &d)
	return d
}

func (m *memRepository) addPatient(name string) Patient {
	p := Patient{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	_ = m.CreatePatient(context.Background(), &p)
	return p
}

func (m *memRepository) recordedEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}

func (m *memRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memRepository) ListDoctors(_ context.Context, query string, includeClosed bool, limit, offset int) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doctor
	q := strings.ToLower(query)
	for _, d := range m.doctors {
		if d.ClinicClosed && !includeClosed {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(d.Name), q) &&
			(d.Specialty == nil || !strings.Contains(strings.ToLower(*d.Specialty), q)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if offset >= len(out) {
		return []Doctor{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepository) CreateDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = *d
	return nil
}

func (m *memRepository) UpdateDoctorSettings(_ context.Context, id uuid.UUID, settings DoctorSettings, ev events.Event) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if settings.DailyCapacity != nil {
		d.DailyCapacity = *settings.DailyCapacity
	}
	if settings.ClinicClosed != nil {
		d.ClinicClosed = *settings.ClinicClosed
	}
	d.UpdatedAt = time.Now()
	m.doctors[id] = d
	m.events = append(m.events, ev)
	return &d, nil
}

func (m *memRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patientLookups++
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memRepository) CreatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = *p
	return nil
}

func (m *memRepository) TakenQueueNumbers(_ context.Context, doctorID uuid.UUID, date Date) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var taken []int
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date.Time) && a.Status.Occupies() {
			taken = append(taken, a.QueueNumber)
		}
	}
	sort.Ints(taken)
	return taken, nil
}

func (m *memRepository) IsSlotTaken(_ context.Context, doctorID uuid.UUID, date Date, queueNumber int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotTakenLocked(doctorID, date, queueNumber), nil
}

func (m *memRepository) slotTakenLocked(doctorID uuid.UUID, date Date, queueNumber int) bool {
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date.Time) && a.QueueNumber == queueNumber && a.Status.Occupies() {
			return true
		}
	}
	return false
}

func (m *memRepository) CreateAppointment(_ context.Context, a *Appointment, ev events.Event) (*Appointment, error) {
	if m.beforeInsert != nil {
		m.beforeInsert()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotTakenLocked(a.DoctorID, a.Date, a.QueueNumber) {
		return nil, ErrSlotTaken
	}
	created := *a
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	m.appointments[created.ID] = created
	m.events = append(m.events, ev)
	return &created, nil
}

func (m *memRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.detailLocked(a), nil
}

func (m *memRepository) detailLocked(a Appointment) *AppointmentDetail {
	return &AppointmentDetail{
		Appointment: a,
		PatientName: m.patients[a.PatientID].Name,
		DoctorName:  m.doctors[a.DoctorID].Name,
	}
}

func (m *memRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status, ev events.Event) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	m.events = append(m.events, ev)
	return &a, nil
}

func (m *memRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, f ListFilter) ([]AppointmentDetail, error) {
	return m.list(func(a Appointment) bool { return a.PatientID == patientID }, f), nil
}

func (m *memRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, f ListFilter) ([]AppointmentDetail, error) {
	return m.list(func(a Appointment) bool { return a.DoctorID == doctorID }, f), nil
}

func (m *memRepository) list(owner func(Appointment) bool, f ListFilter) []AppointmentDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []AppointmentDetail{}
	for _, a := range m.appointments {
		if !owner(a) {
			continue
		}
		if f.Date != nil && !a.Date.Equal(f.Date.Time) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, *m.detailLocked(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[j].Date.Before(out[i].Date)
		}
		return out[i].QueueNumber < out[j].QueueNumber
	})
	if f.Offset >= len(out) {
		return []AppointmentDetail{}
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
