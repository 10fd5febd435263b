package appointment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memRepo is an in-memory Repository used by the service tests. Its filter
// and ordering semantics mirror the SQL implementation.
type memRepo struct {
	mu       sync.Mutex
	users    map[int64]*User
	listings map[int64]*Listing
	appts    map[int64]*Appointment
	events   []EventLog
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    make(map[int64]*User),
		listings: make(map[int64]*Listing),
		appts:    make(map[int64]*Appointment),
	}
}

func (m *memRepo) addUser(u User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
	return &u
}

func (m *memRepo) addListing(l Listing) *Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = &l
	return &l
}

func (m *memRepo) GetUserByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetListingByID(_ context.Context, id int64) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memRepo) HasActiveAppointment(_ context.Context, listingID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasActiveLocked(listingID, at), nil
}

func (m *memRepo) hasActiveLocked(listingID int64, at time.Time) bool {
	for _, a := range m.appts {
		if a.ListingID == listingID && a.ScheduledAt.Equal(at) && a.Status != StatusCancelled {
			return true
		}
	}
	return false
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetAppointmentDetail(ctx context.Context, id int64) (*AppointmentDetail, error) {
	a, err := m.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.detail(a), nil
}

func (m *memRepo) detail(a *Appointment) *AppointmentDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &AppointmentDetail{Appointment: *a}
	if u, ok := m.users[a.UserID]; ok {
		cp := *u
		d.Requester = &cp
	}
	if l, ok := m.listings[a.ListingID]; ok {
		cp := *l
		d.Listing = &cp
	}
	return d
}

func (m *memRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasActiveLocked(a.ListingID, a.ScheduledAt) {
		return nil, ErrSlotTaken
	}
	m.nextID++
	cp := *a
	cp.ID = m.nextID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) UpdateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	cp.UpdatedAt = time.Now()
	m.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) ListAppointments(_ context.Context, f ListFilter) ([]AppointmentDetail, int64, error) {
	m.mu.Lock()
	var matched []*Appointment
	for _, a := range m.appts {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.UserID != nil && a.UserID != *f.UserID {
			continue
		}
		if f.ListingID != nil && a.ListingID != *f.ListingID {
			continue
		}
		if f.StartDate != nil && a.ScheduledAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && a.ScheduledAt.After(*f.EndDate) {
			continue
		}
		matched = append(matched, a)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScheduledAt.After(matched[j].ScheduledAt)
	})

	total := int64(len(matched))

	start := f.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}

	var out []AppointmentDetail
	for _, a := range matched[start:end] {
		out = append(out, *m.detail(a))
	}

	return out, total, nil
}

func (m *memRepo) CountByStatus(_ context.Context) (map[Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int64)
	for _, a := range m.appts {
		counts[a.Status]++
	}
	return counts, nil
}

func (m *memRepo) CountByStatusSince(_ context.Context, since time.Time) (map[Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int64)
	for _, a := range m.appts {
		if !a.CreatedAt.Before(since) {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// passLocker runs the critical section directly, serialized by a mutex.
type passLocker struct {
	mu sync.Mutex
}

func (l *passLocker) WithSlotLock(ctx context.Context, _ int64, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

// recNotifier records emitted notifications and can inject failures.
type recNotifier struct {
	mu        sync.Mutex
	created   []int64
	changed   []int64
	cancelled []int64
	err       error
}

func (n *recNotifier) AppointmentCreated(_ context.Context, d *AppointmentDetail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, d.ID)
	return n.err
}

func (n *recNotifier) AppointmentStatusChanged(_ context.Context, d *AppointmentDetail, _ Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, d.ID)
	return n.err
}

func (n *recNotifier) AppointmentCancelled(_ context.Context, d *AppointmentDetail, _ string, _ int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, d.ID)
	return n.err
}
