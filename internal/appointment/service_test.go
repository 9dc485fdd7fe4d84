package appointment

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

var may1 = NewDate(2025, time.May, 1)

func newTestService(t *testing.T) (*Service, *memRepository) {
	t.Helper()
	repo := newMemRepository()
	svc := NewService(repo, config.Config{MaxCapacity: 100, ClinicTimezone: "UTC"}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, time.April, 30, 9, 0, 0, 0, time.UTC) }
	return svc, repo
}

func patientActor(p Patient) Actor { return Actor{UserID: p.ID, Role: RolePatient} }
func doctorActor(d Doctor) Actor   { return Actor{UserID: d.ID, Role: RoleDoctor} }

func settings(capacity int, closed bool) DoctorSettings {
	return DoctorSettings{DailyCapacity: &capacity, ClinicClosed: &closed}
}

func book(t *testing.T, svc *Service, p Patient, d Doctor, date Date, queue int) (*Appointment, error) {
	t.Helper()
	return svc.Book(context.Background(), patientActor(p), BookingRequest{
		PatientID:   p.ID,
		DoctorID:    d.ID,
		Date:        date,
		QueueNumber: queue,
	})
}

func mustBook(t *testing.T, svc *Service, p Patient, d Doctor, date Date, queue int) *Appointment {
	t.Helper()
	a, err := book(t, svc, p, d, date, queue)
	if err != nil {
		t.Fatalf("book queue %d: %v", queue, err)
	}
	return a
}

func freeSlotsOf(t *testing.T, svc *Service, d Doctor, date Date) []int {
	t.Helper()
	free, err := svc.FreeSlots(context.Background(), d.ID, date)
	if err != nil {
		t.Fatalf("free slots: %v", err)
	}
	return free
}

func TestBookingFlow(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)
	alice, bob, carol := repo.addPatient("Alice"), repo.addPatient("Bob"), repo.addPatient("Carol")

	first := mustBook(t, svc, alice, doc, may1, 2)
	if first.Status != StatusPending {
		t.Fatalf("new appointment status = %s, want pending", first.Status)
	}

	if _, err := book(t, svc, bob, doc, may1, 2); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("second booking of slot 2: got %v, want ErrSlotTaken", err)
	}

	mustBook(t, svc, carol, doc, may1, 3)

	if got := freeSlotsOf(t, svc, doc, may1); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("free slots = %v, want [1]", got)
	}

	// Rejection frees the slot for the next patient.
	if _, err := svc.Reject(context.Background(), doctorActor(doc), first.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := freeSlotsOf(t, svc, doc, may1); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("free slots after reject = %v, want [1 2]", got)
	}
	mustBook(t, svc, bob, doc, may1, 2)
}

func TestBookRejectsQueueBeyondCapacity(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)
	p := repo.addPatient("Alice")

	if _, err := book(t, svc, p, doc, may1, 4); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("queue 4 with capacity 3: got %v, want ErrCapacityExceeded", err)
	}
	if _, err := book(t, svc, p, doc, may1, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("queue 0: got %v, want ErrInvalidInput", err)
	}
}

func TestClosedClinic(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)
	p := repo.addPatient("Alice")

	if _, err := svc.SetCapacity(context.Background(), doctorActor(doc), doc.ID, settings(3, true)); err != nil {
		t.Fatalf("close clinic: %v", err)
	}

	for _, date := range []Date{may1, NewDate(2025, time.June, 10)} {
		if got := freeSlotsOf(t, svc, doc, date); len(got) != 0 {
			t.Fatalf("free slots on %s for closed clinic = %v, want none", date, got)
		}
	}
	if _, err := book(t, svc, p, doc, may1, 1); !errors.Is(err, ErrClinicClosed) {
		t.Fatalf("booking closed clinic: got %v, want ErrClinicClosed", err)
	}
	// Closed wins over an out-of-range queue number.
	if _, err := book(t, svc, p, doc, may1, 99); !errors.Is(err, ErrClinicClosed) {
		t.Fatalf("booking closed clinic beyond capacity: got %v, want ErrClinicClosed", err)
	}

	if _, err := svc.SetCapacity(context.Background(), doctorActor(doc), doc.ID, settings(3, false)); err != nil {
		t.Fatalf("reopen clinic: %v", err)
	}
	mustBook(t, svc, p, doc, may1, 1)
}

func TestBookValidation(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(5)
	p := repo.addPatient("Alice")
	other := repo.addPatient("Mallory")

	tests := []struct {
		name  string
		actor Actor
		req   BookingRequest
		want  error
	}{
		{
			name:  "patient books for someone else",
			actor: patientActor(other),
			req:   BookingRequest{PatientID: p.ID, DoctorID: doc.ID, Date: may1, QueueNumber: 1},
			want:  ErrUnauthorized,
		},
		{
			name:  "doctor cannot book",
			actor: doctorActor(doc),
			req:   BookingRequest{PatientID: doc.ID, DoctorID: doc.ID, Date: may1, QueueNumber: 1},
			want:  ErrUnauthorized,
		},
		{
			name:  "missing date",
			actor: patientActor(p),
			req:   BookingRequest{PatientID: p.ID, DoctorID: doc.ID, QueueNumber: 1},
			want:  ErrInvalidInput,
		},
		{
			name:  "past date",
			actor: patientActor(p),
			req:   BookingRequest{PatientID: p.ID, DoctorID: doc.ID, Date: NewDate(2025, time.April, 29), QueueNumber: 1},
			want:  ErrInvalidInput,
		},
		{
			name:  "notes too long",
			actor: patientActor(p),
			req:   BookingRequest{PatientID: p.ID, DoctorID: doc.ID, Date: may1, QueueNumber: 1, Notes: strings.Repeat("x", maxNotesLength+1)},
			want:  ErrInvalidInput,
		},
		{
			name:  "unknown doctor",
			actor: patientActor(p),
			req:   BookingRequest{PatientID: p.ID, DoctorID: uuid.New(), Date: may1, QueueNumber: 1},
			want:  ErrDoctorNotFound,
		},
		{
			name:  "unknown patient",
			actor: Actor{UserID: uuid.Nil, Role: RolePatient},
			req:   BookingRequest{PatientID: uuid.Nil, DoctorID: doc.ID, Date: may1, QueueNumber: 1},
			want:  ErrPatientNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), tt.actor, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBookTodayIsAllowed(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(2)
	p := repo.addPatient("Alice")

	a := mustBook(t, svc, p, doc, svc.Today(), 1)
	if !a.Date.Equal(NewDate(2025, time.April, 30).Time) {
		t.Fatalf("date = %s, want 2025-04-30", a.Date)
	}
}

func TestBookTrimsNotesAndEmitsEvent(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(2)
	p := repo.addPatient("Alice")

	a, err := svc.Book(context.Background(), patientActor(p), BookingRequest{
		PatientID: p.ID, DoctorID: doc.ID, Date: may1, QueueNumber: 1, Notes: "  fever since monday \n",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if a.Notes != "fever since monday" {
		t.Fatalf("notes = %q", a.Notes)
	}

	evs := repo.recordedEvents()
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Type != events.AppointmentBooked || ev.DoctorID != doc.ID || *ev.AppointmentID != a.ID || *ev.PatientID != p.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestConcurrentBookingSameSlot(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)
	alice, bob := repo.addPatient("Alice"), repo.addPatient("Bob")

	// Hold both bookings after the advisory check so they race on the insert.
	var arrived sync.WaitGroup
	arrived.Add(2)
	repo.beforeInsert = func() {
		arrived.Done()
		arrived.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, p := range []Patient{alice, bob} {
		wg.Add(1)
		go func(i int, p Patient) {
			defer wg.Done()
			_, errs[i] = book(t, svc, p, doc, may1, 2)
		}(i, p)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || taken != 1 {
		t.Fatalf("successes=%d slot_taken=%d, want 1 and 1", ok, taken)
	}
}

func TestBookingStormKeepsOneWinnerPerSlot(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)

	const patients = 30
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners = make(map[int]int)
	)
	for i := 0; i < patients; i++ {
		p := repo.addPatient("p")
		queue := i%3 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := book(t, svc, p, doc, may1, queue)
			if err == nil {
				mu.Lock()
				winners[queue]++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrSlotTaken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	for q := 1; q <= 3; q++ {
		if winners[q] != 1 {
			t.Errorf("slot %d has %d winners, want 1", q, winners[q])
		}
	}
	if got := freeSlotsOf(t, svc, doc, may1); len(got) != 0 {
		t.Fatalf("free slots = %v, want none", got)
	}
}

func TestFreeSlotsPartitionsCapacity(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(6)
	ctx := context.Background()

	for _, q := range []int{1, 4, 6} {
		mustBook(t, svc, repo.addPatient("p"), doc, may1, q)
	}
	rejected := mustBook(t, svc, repo.addPatient("p"), doc, may1, 5)
	if _, err := svc.Reject(ctx, doctorActor(doc), rejected.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	free := freeSlotsOf(t, svc, doc, may1)
	taken, _ := repo.TakenQueueNumbers(ctx, doc.ID, may1)

	seen := make(map[int]bool)
	for _, n := range append(append([]int{}, free...), taken...) {
		if n < 1 || n > doc.DailyCapacity {
			t.Fatalf("slot %d outside [1,%d]", n, doc.DailyCapacity)
		}
		if seen[n] {
			t.Fatalf("slot %d both free and taken", n)
		}
		seen[n] = true
	}
	if len(seen) != doc.DailyCapacity {
		t.Fatalf("free %v and taken %v do not cover capacity %d", free, taken, doc.DailyCapacity)
	}
	if !reflect.DeepEqual(free, []int{2, 3, 5}) {
		t.Fatalf("free = %v, want [2 3 5]", free)
	}

	// Other dates are unaffected.
	if got := freeSlotsOf(t, svc, doc, NewDate(2025, time.May, 2)); len(got) != 6 {
		t.Fatalf("free slots on other date = %v", got)
	}
}

func TestFreeSlotsValidation(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(2)

	if _, err := svc.FreeSlots(context.Background(), uuid.New(), may1); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("unknown doctor: got %v", err)
	}
	if _, err := svc.FreeSlots(context.Background(), doc.ID, Date{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero date: got %v", err)
	}
}

func TestSetCapacity(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)
	other := repo.addDoctor(3)
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    Actor
		capacity int
		want     error
	}{
		{"other doctor", doctorActor(other), 5, ErrUnauthorized},
		{"patient", Actor{UserID: doc.ID, Role: RolePatient}, 5, ErrUnauthorized},
		{"zero", doctorActor(doc), 0, ErrInvalidCapacity},
		{"negative", doctorActor(doc), -2, ErrInvalidCapacity},
		{"above max", doctorActor(doc), 101, ErrInvalidCapacity},
		{"max", doctorActor(doc), 100, nil},
		{"one", doctorActor(doc), 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.SetCapacity(ctx, tt.actor, doc.ID, settings(tt.capacity, false))
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("got %v, want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.DailyCapacity != tt.capacity {
				t.Fatalf("capacity = %d, want %d", d.DailyCapacity, tt.capacity)
			}
		})
	}

	if !errors.Is(ErrInvalidCapacity, ErrInvalidInput) {
		t.Fatal("ErrInvalidCapacity should be an invalid input error")
	}
}

func TestSetCapacityPartialUpdate(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)
	ctx := context.Background()

	closed := true
	d, err := svc.SetCapacity(ctx, doctorActor(doc), doc.ID, DoctorSettings{ClinicClosed: &closed})
	if err != nil {
		t.Fatalf("close clinic: %v", err)
	}
	if d.DailyCapacity != 3 || !d.ClinicClosed {
		t.Fatalf("after close: capacity=%d closed=%v", d.DailyCapacity, d.ClinicClosed)
	}

	capacity := 8
	d, err = svc.SetCapacity(ctx, doctorActor(doc), doc.ID, DoctorSettings{DailyCapacity: &capacity})
	if err != nil {
		t.Fatalf("raise capacity: %v", err)
	}
	if d.DailyCapacity != 8 || !d.ClinicClosed {
		t.Fatalf("capacity change reopened clinic: capacity=%d closed=%v", d.DailyCapacity, d.ClinicClosed)
	}

	evs := repo.recordedEvents()
	last := string(evs[len(evs)-1].Payload)
	if strings.Contains(last, "clinic_closed") || !strings.Contains(last, `"daily_capacity":8`) {
		t.Fatalf("payload = %s, want only the changed capacity", last)
	}

	if _, err := svc.SetCapacity(ctx, doctorActor(doc), doc.ID, DoctorSettings{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty settings: got %v, want ErrInvalidInput", err)
	}
}

func TestToggleClinicIgnoresStoredCapacityAboveMax(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(100)
	svc.maxCapacity = 50

	closed := true
	d, err := svc.SetCapacity(context.Background(), doctorActor(doc), doc.ID, DoctorSettings{ClinicClosed: &closed})
	if err != nil {
		t.Fatalf("toggle clinic: %v", err)
	}
	if d.DailyCapacity != 100 || !d.ClinicClosed {
		t.Fatalf("capacity=%d closed=%v", d.DailyCapacity, d.ClinicClosed)
	}
}

func TestCapacityCutKeepsExistingAppointments(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(5)
	ctx := context.Background()

	high := mustBook(t, svc, repo.addPatient("p"), doc, may1, 5)

	if _, err := svc.SetCapacity(ctx, doctorActor(doc), doc.ID, settings(2, false)); err != nil {
		t.Fatalf("set capacity: %v", err)
	}

	if got := freeSlotsOf(t, svc, doc, may1); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("free slots after cut = %v, want [1 2]", got)
	}
	if _, err := book(t, svc, repo.addPatient("p"), doc, may1, 3); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("booking above new capacity: got %v", err)
	}

	// The slot-5 appointment can still move through its lifecycle.
	if _, err := svc.Accept(ctx, doctorActor(doc), high.ID); err != nil {
		t.Fatalf("accept above capacity: %v", err)
	}
	done, err := svc.Complete(ctx, doctorActor(doc), high.ID)
	if err != nil {
		t.Fatalf("complete above capacity: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}

	evs := repo.recordedEvents()
	if evs[1].Type != events.DoctorSettingsChanged {
		t.Fatalf("second event = %s, want settings change", evs[1].Type)
	}
}

func TestListDoctors(t *testing.T) {
	svc, repo := newTestService(t)
	open := repo.addDoctor(3)
	closed := repo.addDoctor(3)
	if _, err := svc.SetCapacity(context.Background(), doctorActor(closed), closed.ID, settings(3, true)); err != nil {
		t.Fatal(err)
	}

	list, err := svc.ListDoctors(context.Background(), "", false, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != open.ID {
		t.Fatalf("open doctors = %+v", list)
	}

	list, err = svc.ListDoctors(context.Background(), "", true, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("all doctors = %d, want 2", len(list))
	}

	specialty := "Cardiology"
	cardio := Doctor{ID: uuid.New(), Name: "Dr. Heart", Specialty: &specialty, DailyCapacity: 3}
	if err := repo.CreateDoctor(context.Background(), &cardio); err != nil {
		t.Fatal(err)
	}
	list, err = svc.ListDoctors(context.Background(), "cardio", false, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != cardio.ID {
		t.Fatalf("specialty search = %+v", list)
	}
}

func TestAppointmentVisibility(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(3)
	otherDoc := repo.addDoctor(3)
	alice, bob := repo.addPatient("Alice"), repo.addPatient("Bob")
	ctx := context.Background()

	a := mustBook(t, svc, alice, doc, may1, 1)
	mustBook(t, svc, bob, doc, may1, 2)

	if _, err := svc.GetAppointment(ctx, patientActor(alice), a.ID); err != nil {
		t.Fatalf("owner patient: %v", err)
	}
	got, err := svc.GetAppointment(ctx, doctorActor(doc), a.ID)
	if err != nil {
		t.Fatalf("owner doctor: %v", err)
	}
	if got.PatientName != "Alice" {
		t.Fatalf("patient name = %q", got.PatientName)
	}
	if _, err := svc.GetAppointment(ctx, patientActor(bob), a.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("other patient: got %v", err)
	}
	if _, err := svc.GetAppointment(ctx, doctorActor(otherDoc), a.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("other doctor: got %v", err)
	}

	mine, err := svc.ListAppointments(ctx, patientActor(alice), ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != a.ID {
		t.Fatalf("alice's list = %+v", mine)
	}

	pending := StatusPending
	queue, err := svc.ListAppointments(ctx, doctorActor(doc), ListFilter{Date: &may1, Status: &pending})
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 2 || queue[0].QueueNumber != 1 || queue[1].QueueNumber != 2 {
		t.Fatalf("doctor's list = %+v", queue)
	}
}

func TestDoctorDay(t *testing.T) {
	svc, repo := newTestService(t)
	doc := repo.addDoctor(4)
	ctx := context.Background()

	mustBook(t, svc, repo.addPatient("p3"), doc, may1, 3)
	mustBook(t, svc, repo.addPatient("p1"), doc, may1, 1)
	gone := mustBook(t, svc, repo.addPatient("p2"), doc, may1, 2)
	if _, err := svc.Reject(ctx, doctorActor(doc), gone.ID); err != nil {
		t.Fatal(err)
	}

	day, err := svc.DoctorDay(ctx, doctorActor(doc), doc.ID, may1)
	if err != nil {
		t.Fatalf("doctor day: %v", err)
	}
	if len(day.Appointments) != 2 || day.Appointments[0].QueueNumber != 1 || day.Appointments[1].QueueNumber != 3 {
		t.Fatalf("appointments = %+v", day.Appointments)
	}
	if !reflect.DeepEqual(day.FreeSlots, []int{2, 4}) {
		t.Fatalf("free = %v, want [2 4]", day.FreeSlots)
	}

	if _, err := svc.DoctorDay(ctx, doctorActor(repo.addDoctor(1)), doc.ID, may1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("other doctor: got %v", err)
	}
}

func TestPatientCache(t *testing.T) {
	repo := newMemRepository()
	p := repo.addPatient("Alice")

	cached, err := WithPatientCache(repo, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		got, err := cached.GetPatientByID(context.Background(), p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "Alice" {
			t.Fatalf("name = %q", got.Name)
		}
	}
	if repo.patientLookups != 1 {
		t.Fatalf("repository lookups = %d, want 1", repo.patientLookups)
	}

	if _, err := cached.GetPatientByID(context.Background(), uuid.New()); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("missing patient: got %v", err)
	}

	plain, err := WithPatientCache(repo, 0)
	if err != nil || plain != Repository(repo) {
		t.Fatalf("size 0 should return the repository unchanged")
	}
}
