package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/openhaus/realty-api/internal/appointment"
	"github.com/openhaus/realty-api/internal/auth"
)

const testSecret = "test-secret"

// stubRepo is an in-memory appointment.Repository for handler tests.
type stubRepo struct {
	mu       sync.Mutex
	users    map[int64]appointment.User
	listings map[int64]appointment.Listing
	appts    map[int64]appointment.Appointment
	nextID   int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users: map[int64]appointment.User{
			1: {ID: 1, FirstName: "Maya", LastName: "Lindqvist", Email: "maya@example.com", Role: "user"},
			2: {ID: 2, FirstName: "Jonas", LastName: "Berg", Email: "jonas@example.com", Role: "user"},
			9: {ID: 9, FirstName: "Ada", LastName: "Okafor", Email: "ada@example.com", Role: "agent"},
		},
		listings: map[int64]appointment.Listing{
			7: {ID: 7, Title: "Sunny Loft on Elm St", Address: "12 Elm St", Price: 425000},
		},
		appts: map[int64]appointment.Appointment{},
	}
}

func (s *stubRepo) GetUserByID(_ context.Context, id int64) (*appointment.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, appointment.ErrUserNotFound
	}
	return &u, nil
}

func (s *stubRepo) GetListingByID(_ context.Context, id int64) (*appointment.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, appointment.ErrListingNotFound
	}
	return &l, nil
}

func (s *stubRepo) HasActiveAppointment(_ context.Context, listingID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		if a.ListingID == listingID && a.ScheduledAt.Equal(at) && a.Status != appointment.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) GetAppointmentByID(_ context.Context, id int64) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *stubRepo) GetAppointmentDetail(ctx context.Context, id int64) (*appointment.AppointmentDetail, error) {
	a, err := s.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := appointment.AppointmentDetail{Appointment: *a}
	if u, err := s.GetUserByID(ctx, a.UserID); err == nil {
		d.Requester = u
	}
	if l, err := s.GetListingByID(ctx, a.ListingID); err == nil {
		d.Listing = l
	}
	return &d, nil
}

func (s *stubRepo) CreateAppointment(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.appts {
		if existing.ListingID == a.ListingID && existing.ScheduledAt.Equal(a.ScheduledAt) && existing.Status != appointment.StatusCancelled {
			return nil, appointment.ErrSlotTaken
		}
	}
	s.nextID++
	cp := *a
	cp.ID = s.nextID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.appts[cp.ID] = cp
	return &cp, nil
}

func (s *stubRepo) UpdateAppointment(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appts[a.ID]; !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	cp.UpdatedAt = time.Now()
	s.appts[cp.ID] = cp
	return &cp, nil
}

func (s *stubRepo) ListAppointments(ctx context.Context, f appointment.ListFilter) ([]appointment.AppointmentDetail, int64, error) {
	s.mu.Lock()
	var matched []appointment.Appointment
	for _, a := range s.appts {
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
	s.mu.Unlock()

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

	var out []appointment.AppointmentDetail
	for i := range matched[start:end] {
		a := matched[start+i]
		d, err := s.GetAppointmentDetail(ctx, a.ID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, nil
}

func (s *stubRepo) CountByStatus(_ context.Context) (map[appointment.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[appointment.Status]int64)
	for _, a := range s.appts {
		counts[a.Status]++
	}
	return counts, nil
}

func (s *stubRepo) CountByStatusSince(_ context.Context, since time.Time) (map[appointment.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[appointment.Status]int64)
	for _, a := range s.appts {
		if !a.CreatedAt.Before(since) {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (s *stubRepo) InsertEvent(_ context.Context, _ appointment.EventLog) error { return nil }

type nopLocker struct{ mu sync.Mutex }

func (l *nopLocker) WithSlotLock(ctx context.Context, _ int64, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type nopNotifier struct{}

func (nopNotifier) AppointmentCreated(context.Context, *appointment.AppointmentDetail) error {
	return nil
}
func (nopNotifier) AppointmentStatusChanged(context.Context, *appointment.AppointmentDetail, appointment.Status) error {
	return nil
}
func (nopNotifier) AppointmentCancelled(context.Context, *appointment.AppointmentDetail, string, int64) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *appointment.Service) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := appointment.NewService(newStubRepo(), &nopLocker{}, nopNotifier{}, logger)

	router := NewRouter(RouterConfig{
		Service:   svc,
		JWTSecret: testSecret,
		Env:       "test",
		Version:   "test",
		Logger:    logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, svc
}

func token(t *testing.T, id int64, role string) string {
	t.Helper()
	tok, err := auth.SignToken(id, role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *Meta           `json:"meta"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
}

func doJSON(t *testing.T, method, url, bearer string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, env
}

func TestBookingScenario(t *testing.T) {
	srv, _ := newTestServer(t)
	user1 := token(t, 1, auth.RoleUser)

	create := map[string]any{
		"userId":      1,
		"listingId":   7,
		"scheduledAt": "2025-03-01T10:00:00Z",
	}

	// Create appointment A.
	status, env := doJSON(t, http.MethodPost, srv.URL+"/appointments", "", create)
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("create A: status=%d env=%+v", status, env)
	}
	var a AppointmentResponse
	if err := json.Unmarshal(env.Data, &a); err != nil {
		t.Fatal(err)
	}
	if a.Status != "SCHEDULED" {
		t.Errorf("status = %s, want SCHEDULED", a.Status)
	}

	// Same slot again: conflict.
	create["userId"] = 2
	status, env = doJSON(t, http.MethodPost, srv.URL+"/appointments", "", create)
	if status != http.StatusConflict {
		t.Fatalf("create B: status=%d, want 409", status)
	}
	if env.Success || env.Error != KindConflict {
		t.Errorf("create B envelope: %+v", env)
	}

	// Requester cancels A.
	status, env = doJSON(t, http.MethodPost, fmt.Sprintf("%s/appointments/%d/cancel", srv.URL, a.ID), user1,
		map[string]any{"reason": "reschedule"})
	if status != http.StatusOK {
		t.Fatalf("cancel A: status=%d env=%+v", status, env)
	}
	var cancelled AppointmentResponse
	if err := json.Unmarshal(env.Data, &cancelled); err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != "CANCELLED" || cancelled.CancelledAt == nil {
		t.Errorf("cancel A: %+v", cancelled)
	}
	if cancelled.CancellationReason != "reschedule" {
		t.Errorf("reason = %q", cancelled.CancellationReason)
	}

	// Slot is free again.
	status, _ = doJSON(t, http.MethodPost, srv.URL+"/appointments", "", create)
	if status != http.StatusCreated {
		t.Fatalf("create C after cancel: status=%d, want 201", status)
	}
}

func TestCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	status, env := doJSON(t, http.MethodPost, srv.URL+"/appointments", "", map[string]any{"userId": 1})
	if status != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", status)
	}
	if env.Success || env.Error != KindValidation || len(env.Errors) == 0 {
		t.Errorf("envelope: %+v", env)
	}

	status, env = doJSON(t, http.MethodPost, srv.URL+"/appointments", "", map[string]any{
		"userId": 1, "listingId": 7, "scheduledAt": "2025-03-01T10:00:00Z", "status": "BOOKED",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad status enum: status=%d, want 400", status)
	}
	if len(env.Errors) == 0 {
		t.Errorf("expected field errors, got %+v", env)
	}
}

func TestAuthBoundaries(t *testing.T) {
	srv, svc := newTestServer(t)

	d, err := svc.Create(context.Background(), appointment.CreateInput{
		UserID: 1, ListingID: 7, ScheduledAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	// List requires a token.
	status, env := doJSON(t, http.MethodGet, srv.URL+"/appointments", "", nil)
	if status != http.StatusUnauthorized || env.Error != KindUnauthorized {
		t.Errorf("unauthenticated list: status=%d env=%+v", status, env)
	}

	// Update requires staff.
	userTok := token(t, 1, auth.RoleUser)
	status, env = doJSON(t, http.MethodPut, fmt.Sprintf("%s/appointments/%d", srv.URL, d.ID), userTok,
		map[string]any{"status": "CONFIRMED"})
	if status != http.StatusForbidden || env.Error != KindForbidden {
		t.Errorf("non-staff update: status=%d env=%+v", status, env)
	}

	// A stranger cannot cancel someone else's appointment.
	strangerTok := token(t, 2, auth.RoleUser)
	status, env = doJSON(t, http.MethodPost, fmt.Sprintf("%s/appointments/%d/cancel", srv.URL, d.ID), strangerTok, nil)
	if status != http.StatusForbidden {
		t.Errorf("stranger cancel: status=%d env=%+v", status, env)
	}

	// Staff can update.
	staffTok := token(t, 9, auth.RoleAgent)
	status, env = doJSON(t, http.MethodPut, fmt.Sprintf("%s/appointments/%d", srv.URL, d.ID), staffTok,
		map[string]any{"status": "CONFIRMED", "agentNotes": "meet at lobby"})
	if status != http.StatusOK {
		t.Fatalf("staff update: status=%d env=%+v", status, env)
	}
	var updated AppointmentResponse
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Status != "CONFIRMED" || updated.AgentNotes != "meet at lobby" {
		t.Errorf("updated: %+v", updated)
	}
}

func TestListPaginationAndScoping(t *testing.T) {
	srv, svc := newTestServer(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		userID := int64(1)
		if i%5 == 0 {
			userID = 2
		}
		_, err := svc.Create(context.Background(), appointment.CreateInput{
			UserID: userID, ListingID: 7, ScheduledAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	staffTok := token(t, 9, auth.RoleAgent)
	status, env := doJSON(t, http.MethodGet, srv.URL+"/appointments?page=2&limit=10", staffTok, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status=%d env=%+v", status, env)
	}
	var items []AppointmentResponse
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 10 {
		t.Errorf("items = %d, want 10", len(items))
	}
	if env.Meta == nil || env.Meta.Total != 25 || env.Meta.TotalPages != 3 || env.Meta.Page != 2 {
		t.Errorf("meta = %+v", env.Meta)
	}

	// Non-numeric pagination falls back to defaults.
	status, env = doJSON(t, http.MethodGet, srv.URL+"/appointments?page=abc&limit=-2", staffTok, nil)
	if status != http.StatusOK {
		t.Fatalf("coerced list: status=%d", status)
	}
	if env.Meta == nil || env.Meta.Page != 1 || env.Meta.Limit != 10 {
		t.Errorf("coerced meta = %+v", env.Meta)
	}

	// Non-staff callers only see their own records.
	userTok := token(t, 2, auth.RoleUser)
	status, env = doJSON(t, http.MethodGet, srv.URL+"/appointments?limit=50", userTok, nil)
	if status != http.StatusOK {
		t.Fatalf("scoped list: status=%d", status)
	}
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatal(err)
	}
	if env.Meta.Total != 5 {
		t.Errorf("scoped total = %d, want 5", env.Meta.Total)
	}
	for _, it := range items {
		if it.UserID != 2 {
			t.Errorf("scoped list leaked appointment of user %d", it.UserID)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, svc := newTestServer(t)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	d, err := svc.Create(context.Background(), appointment.CreateInput{UserID: 1, ListingID: 7, ScheduledAt: at})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(context.Background(), d.ID, 1, false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(context.Background(), appointment.CreateInput{UserID: 1, ListingID: 7, ScheduledAt: at.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	// Stats is staff only.
	userTok := token(t, 1, auth.RoleUser)
	status, _ := doJSON(t, http.MethodGet, srv.URL+"/appointments/stats", userTok, nil)
	if status != http.StatusForbidden {
		t.Fatalf("non-staff stats: status=%d, want 403", status)
	}

	staffTok := token(t, 9, auth.RoleAgent)
	status, env := doJSON(t, http.MethodGet, srv.URL+"/appointments/stats", staffTok, nil)
	if status != http.StatusOK {
		t.Fatalf("stats: status=%d env=%+v", status, env)
	}

	var stats StatsResponse
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	var sum int64
	for _, st := range appointment.Statuses {
		n, ok := stats.ByStatus[string(st)]
		if !ok {
			t.Errorf("byStatus missing key %s", st)
		}
		sum += n
		if _, ok := stats.RecentStats[string(st)]; !ok {
			t.Errorf("recentStats missing key %s", st)
		}
	}
	if sum != stats.Total {
		t.Errorf("byStatus sums to %d, total %d", sum, stats.Total)
	}
}

func TestGetAppointmentOwnership(t *testing.T) {
	srv, svc := newTestServer(t)

	d, err := svc.Create(context.Background(), appointment.CreateInput{
		UserID: 1, ListingID: 7, ScheduledAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	ownerTok := token(t, 1, auth.RoleUser)
	status, env := doJSON(t, http.MethodGet, fmt.Sprintf("%s/appointments/%d", srv.URL, d.ID), ownerTok, nil)
	if status != http.StatusOK {
		t.Fatalf("owner get: status=%d env=%+v", status, env)
	}

	strangerTok := token(t, 2, auth.RoleUser)
	status, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/appointments/%d", srv.URL, d.ID), strangerTok, nil)
	if status != http.StatusForbidden {
		t.Errorf("stranger get: status=%d, want 403", status)
	}

	staffTok := token(t, 9, auth.RoleAgent)
	status, env = doJSON(t, http.MethodGet, srv.URL+"/appointments/999", staffTok, nil)
	if status != http.StatusNotFound || env.Error != KindNotFound {
		t.Errorf("missing get: status=%d env=%+v", status, env)
	}
}

func TestParseListFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/appointments?"+url.Values{
		"page":      {"2"},
		"limit":     {"5"},
		"status":    {"CONFIRMED"},
		"userId":    {"3"},
		"listingId": {"7"},
		"startDate": {"2025-03-01"},
		"endDate":   {"2025-03-02T10:00:00Z"},
	}.Encode(), nil)

	f, errs := parseListFilter(req)
	if errs != nil {
		t.Fatalf("unexpected field errors: %v", errs)
	}
	if f.Page != 2 || f.Limit != 5 {
		t.Errorf("page/limit = %d/%d", f.Page, f.Limit)
	}
	if f.Status == nil || *f.Status != appointment.StatusConfirmed {
		t.Error("status filter not parsed")
	}
	if f.UserID == nil || *f.UserID != 3 || f.ListingID == nil || *f.ListingID != 7 {
		t.Error("id filters not parsed")
	}
	if f.StartDate == nil || !f.StartDate.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("startDate = %v", f.StartDate)
	}
	if f.EndDate == nil {
		t.Fatal("endDate not parsed")
	}

	bad := httptest.NewRequest(http.MethodGet, "/appointments?status=nope&userId=x", nil)
	_, errs = parseListFilter(bad)
	if len(errs) != 2 {
		t.Errorf("field errors = %v, want 2 entries", errs)
	}
}
