/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/media"
	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/presentation"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeDisplay struct {
	mu    sync.Mutex
	mode  presentation.Mode
	loads []string
	names []string
	plays int
}

func (d *fakeDisplay) setMode(m presentation.Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
}

// played returns the sources loaded so far and the play count.
func (d *fakeDisplay) played() ([]string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.loads...), d.plays
}

func (d *fakeDisplay) Mode() presentation.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *fakeDisplay) LoadAudio(src, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads = append(d.loads, src)
	d.names = append(d.names, name)
}

func (d *fakeDisplay) PlayAudio() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plays++
}

type memRepo struct {
	mu        sync.Mutex
	schedules []models.AudioSchedule
	presets   []models.AudioSchedulePreset
	saveErr   error
	saves     int
}

func (r *memRepo) Load(ctx context.Context) ([]models.AudioSchedule, []models.AudioSchedulePreset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AudioSchedule(nil), r.schedules...), append([]models.AudioSchedulePreset(nil), r.presets...), nil
}

func (r *memRepo) SaveSchedules(ctx context.Context, s []models.AudioSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.schedules = s
	return nil
}

func (r *memRepo) SavePresets(ctx context.Context, p []models.AudioSchedulePreset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.presets = p
	return nil
}

type stubResolver struct {
	mu    sync.Mutex
	path  string
	err   error
	calls int
}

func (r *stubResolver) Resolve(_ context.Context, kind media.Kind, id string) (media.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return media.Item{}, r.err
	}
	return media.Item{ID: id, Kind: kind, Path: r.path}, nil
}

type published struct {
	eventType events.EventType
	payload   events.Payload
}

type recordingBus struct {
	mu  sync.Mutex
	log []published
}

func (b *recordingBus) Publish(t events.EventType, p events.Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, published{t, p})
}

func (b *recordingBus) lifecycle() []LifecycleType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []LifecycleType
	for _, e := range b.log {
		if e.eventType == events.EventScheduleLifecycle {
			out = append(out, LifecycleType(e.payload["type"].(string)))
		}
	}
	return out
}

type harness struct {
	clk     *clockwork.FakeClock
	display *fakeDisplay
	repo    *memRepo
	bus     *recordingBus
	svc     *Service
}

func newHarness(t *testing.T, repo *memRepo, opts ...Option) *harness {
	t.Helper()
	if repo == nil {
		repo = &memRepo{}
	}
	h := &harness{
		clk:     clockwork.NewFakeClockAt(t0),
		display: &fakeDisplay{mode: presentation.ModeIdle},
		repo:    repo,
		bus:     &recordingBus{},
	}
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	svc, err := New(context.Background(), h.clk, h.display, h.repo, h.bus, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Close)
	h.svc = svc
	return h
}

// armed waits until exactly n timers are registered with the fake clock.
func (h *harness) armed(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.clk.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d armed timers: %v", n, err)
	}
}

// status waits for a schedule to reach want. Timer callbacks run on their
// own goroutine.
func (h *harness) status(t *testing.T, id string, want models.ScheduleStatus) models.AudioSchedule {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, ok := h.svc.Schedule(id)
		if ok && rec.Status == want {
			return rec
		}
		if time.Now().After(deadline) {
			t.Fatalf("schedule %s: status %s, want %s", id, rec.Status, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func intPtr(v int) *int { return &v }

func relative(minutes int) CreateRequest {
	return CreateRequest{
		AudioID:         "bell.mp3",
		AudioName:       "Bell",
		AudioPath:       "/media/audio/bell.mp3",
		TimeType:        models.TimeRelative,
		RelativeMinutes: intPtr(minutes),
	}
}

func TestCreateRelativeSchedule(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.svc.Create(context.Background(), relative(10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !rec.ScheduledTime.Equal(t0.Add(10 * time.Minute)) {
		t.Fatalf("scheduled %v, want %v", rec.ScheduledTime, t0.Add(10*time.Minute))
	}
	if rec.Status != models.StatusPending {
		t.Fatalf("status %s", rec.Status)
	}
	h.armed(t, 1)
	if got := h.svc.Pending(); len(got) != 1 || got[0].ID != rec.ID {
		t.Fatalf("pending %+v", got)
	}
	if len(h.repo.schedules) != 1 {
		t.Fatalf("expected schedule to be persisted, got %d", len(h.repo.schedules))
	}
	if got := h.bus.lifecycle(); len(got) != 1 || got[0] != LifecycleCreated {
		t.Fatalf("lifecycle events %v", got)
	}

	h.clk.Advance(10*time.Minute - time.Second)
	if loads, _ := h.display.played(); len(loads) != 0 {
		t.Fatalf("fired early: %v", loads)
	}
	h.clk.Advance(time.Second)
	h.status(t, rec.ID, models.StatusTriggered)
}

func TestCreateAbsoluteRollsForward(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"later today", t0.Add(2 * time.Hour), t0.Add(2 * time.Hour)},
		{"earlier today", t0.Add(-5 * time.Minute), t0.Add(24*time.Hour - 5*time.Minute)},
		{"exactly now", t0, t0.Add(24 * time.Hour)},
		{"three days old", t0.Add(-72*time.Hour + 5*time.Minute), t0.Add(5 * time.Minute)},
		{"last year", t0.AddDate(-1, 0, 0).Add(-time.Hour), t0.Add(23 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			at := tt.at
			rec, err := h.svc.Create(context.Background(), CreateRequest{
				AudioPath: "/media/audio/bell.mp3", TimeType: models.TimeAbsolute, AbsoluteTime: &at,
			})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if !rec.ScheduledTime.Equal(tt.want) {
				t.Fatalf("scheduled %v, want %v", rec.ScheduledTime, tt.want)
			}

			h.clk.Advance(0)
			if loads, plays := h.display.played(); len(loads) != 0 || plays != 0 {
				t.Fatalf("played immediately: loads=%v plays=%d", loads, plays)
			}
			if got, _ := h.svc.Schedule(rec.ID); got.Status != models.StatusPending {
				t.Fatalf("status %s, want pending", got.Status)
			}
		})
	}
}

func TestNextOccurrenceKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// Clocks spring forward at 02:00 on 2026-03-08.
	now := time.Date(2026, 3, 7, 10, 0, 0, 0, loc)
	at := time.Date(2026, 3, 7, 9, 0, 0, 0, loc)

	got := nextOccurrence(at, now)
	if want := time.Date(2026, 3, 8, 9, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("next occurrence %v, want %v", got, want)
	}
	if got.Sub(at) != 23*time.Hour {
		t.Fatalf("gap %v, want 23h on the short day", got.Sub(at))
	}
}

func TestCreateRejectsInvalidParameters(t *testing.T) {
	h := newHarness(t, nil)
	now := t0

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing path", CreateRequest{TimeType: models.TimeRelative, RelativeMinutes: intPtr(5)}},
		{"id without resolver", CreateRequest{AudioID: "bell.mp3", TimeType: models.TimeRelative, RelativeMinutes: intPtr(5)}},
		{"relative without minutes", CreateRequest{AudioPath: "a", TimeType: models.TimeRelative}},
		{"relative zero", CreateRequest{AudioPath: "a", TimeType: models.TimeRelative, RelativeMinutes: intPtr(0)}},
		{"relative negative", CreateRequest{AudioPath: "a", TimeType: models.TimeRelative, RelativeMinutes: intPtr(-3)}},
		{"absolute without time", CreateRequest{AudioPath: "a", TimeType: models.TimeAbsolute}},
		{"unknown type", CreateRequest{AudioPath: "a", TimeType: "weekly", AbsoluteTime: &now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.Create(context.Background(), tt.req); !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("expected ErrInvalidParameters, got %v", err)
			}
		})
	}
	if n := len(h.svc.Schedules()); n != 0 {
		t.Fatalf("invalid requests stored %d schedules", n)
	}
	h.armed(t, 0)
}

func TestFireSkipsWhenNotIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.display.setMode(presentation.ModeText)

	rec, err := h.svc.Create(context.Background(), relative(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.clk.Advance(time.Minute)

	got := h.status(t, rec.ID, models.StatusSkipped)
	if got.SkipReason != models.SkipNotIdle {
		t.Fatalf("skip reason %s, want not_idle", got.SkipReason)
	}
	if loads, plays := h.display.played(); len(loads) != 0 || plays != 0 {
		t.Fatalf("display was driven: loads=%v plays=%d", loads, plays)
	}
	if events := h.bus.lifecycle(); events[len(events)-1] != LifecycleSkipped {
		t.Fatalf("lifecycle events %v", events)
	}
}

func TestFireTriggersWhenIdle(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	store := presentation.NewStore(presentation.DefaultIdle(), zerolog.Nop())
	svc, err := New(context.Background(), clk, store, &memRepo{}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()
	h := &harness{clk: clk, svc: svc}

	rec, err := svc.Create(context.Background(), relative(3))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clk.Advance(3 * time.Minute)

	got := h.status(t, rec.ID, models.StatusTriggered)
	if got.TriggeredAt == nil || !got.TriggeredAt.Equal(t0.Add(3*time.Minute)) {
		t.Fatalf("unexpected triggered_at %v", got.TriggeredAt)
	}
	st := store.State()
	if st.Audio.Src != rec.AudioPath || st.Audio.Name != "Bell" || !st.Audio.Playing {
		t.Fatalf("store audio not started: %+v", st.Audio)
	}
	if st.Mode != presentation.ModeIdle {
		t.Fatalf("mode changed to %s", st.Mode)
	}
}

func TestFireDrivesDisplayExactlyOnce(t *testing.T) {
	h := newHarness(t, nil)
	rec, err := h.svc.Create(context.Background(), relative(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.clk.Advance(time.Hour)
	h.status(t, rec.ID, models.StatusTriggered)
	h.svc.fire(rec.ID)

	h.display.mu.Lock()
	defer h.display.mu.Unlock()
	if len(h.display.loads) != 1 || h.display.loads[0] != rec.AudioPath || h.display.names[0] != rec.AudioName {
		t.Fatalf("loads %v names %v", h.display.loads, h.display.names)
	}
	if h.display.plays != 1 {
		t.Fatalf("plays %d", h.display.plays)
	}
}

func TestFireResolvesAudioAgain(t *testing.T) {
	resolver := &stubResolver{path: "https://bucket.example/audio/bell.mp3?X-Amz-Signature=fresh"}
	h := newHarness(t, nil, WithResolver(resolver))

	req := relative(30)
	req.AudioPath = "https://bucket.example/audio/bell.mp3?X-Amz-Signature=stale"
	rec, err := h.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.clk.Advance(30 * time.Minute)
	h.status(t, rec.ID, models.StatusTriggered)

	loads, plays := h.display.played()
	if len(loads) != 1 || loads[0] != resolver.path || plays != 1 {
		t.Fatalf("loads %v plays %d, want the freshly resolved source", loads, plays)
	}
}

func TestFireSkipsWhenAudioNoLongerResolves(t *testing.T) {
	resolver := &stubResolver{err: media.ErrNotFound}
	h := newHarness(t, nil, WithResolver(resolver))

	rec, err := h.svc.Create(context.Background(), CreateRequest{
		AudioID: "removed.mp3", TimeType: models.TimeRelative, RelativeMinutes: intPtr(1),
	})
	if err != nil {
		t.Fatalf("Create with id only: %v", err)
	}
	h.clk.Advance(time.Minute)

	got := h.status(t, rec.ID, models.StatusSkipped)
	if got.SkipReason != models.SkipMediaMissing {
		t.Fatalf("skip reason %s, want media_missing", got.SkipReason)
	}
	if loads, plays := h.display.played(); len(loads) != 0 || plays != 0 {
		t.Fatalf("display was driven: loads=%v plays=%d", loads, plays)
	}
	if lc := h.bus.lifecycle(); lc[len(lc)-1] != LifecycleSkipped {
		t.Fatalf("lifecycle events %v", lc)
	}
}

func TestFireWithoutAudioIDUsesStoredPath(t *testing.T) {
	resolver := &stubResolver{err: errors.New("should not be called")}
	h := newHarness(t, nil, WithResolver(resolver))

	req := relative(1)
	req.AudioID = ""
	rec, err := h.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.clk.Advance(time.Minute)
	h.status(t, rec.ID, models.StatusTriggered)

	if loads, _ := h.display.played(); len(loads) != 1 || loads[0] != req.AudioPath {
		t.Fatalf("loads %v", loads)
	}
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	if resolver.calls != 0 {
		t.Fatalf("resolver called %d times", resolver.calls)
	}
}

func TestRestartRecovery(t *testing.T) {
	repo := &memRepo{schedules: []models.AudioSchedule{
		{ID: "missed", AudioPath: "/a.mp3", TimeType: models.TimeRelative, ScheduledTime: t0.Add(-time.Minute), Status: models.StatusPending, CreatedAt: t0.Add(-time.Hour)},
		{ID: "upcoming", AudioPath: "/b.mp3", TimeType: models.TimeAbsolute, ScheduledTime: t0.Add(30 * time.Minute), Status: models.StatusPending, CreatedAt: t0.Add(-time.Hour)},
	}}
	h := newHarness(t, repo)

	h.armed(t, 1)
	if got := h.svc.Pending(); len(got) != 1 || got[0].ID != "upcoming" {
		t.Fatalf("re-armed schedules %+v, want [upcoming]", got)
	}
	if got := h.bus.lifecycle(); len(got) != 1 || got[0] != LifecycleExpired {
		t.Fatalf("lifecycle events %v", got)
	}
	if _, ok := h.svc.Schedule("missed"); ok {
		t.Fatal("expired schedule should be swept at startup")
	}

	h.clk.Advance(29 * time.Minute)
	if loads, _ := h.display.played(); len(loads) != 0 {
		t.Fatalf("re-armed timer fired early: %v", loads)
	}
	h.clk.Advance(time.Minute)
	h.status(t, "upcoming", models.StatusTriggered)
	if loads, _ := h.display.played(); len(loads) != 1 || loads[0] != "/b.mp3" {
		t.Fatalf("only the upcoming schedule should play, got %v", loads)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	before, err := h.svc.Create(ctx, relative(5))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !h.svc.Cancel(before.ID) {
		t.Fatal("cancel of pending schedule returned false")
	}
	if _, ok := h.svc.Schedule(before.ID); ok {
		t.Fatal("cancelled schedule still present")
	}
	h.armed(t, 0)
	h.clk.Advance(10 * time.Minute)
	if _, plays := h.display.played(); plays != 0 {
		t.Fatal("cancelled schedule fired")
	}

	after, err := h.svc.Create(ctx, relative(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.clk.Advance(time.Minute)
	h.status(t, after.ID, models.StatusTriggered)
	if h.svc.Cancel(after.ID) {
		t.Fatal("cancel after fire should return false")
	}
	got, ok := h.svc.Schedule(after.ID)
	if !ok || got.Status != models.StatusTriggered {
		t.Fatalf("fired schedule changed by cancel: %+v", got)
	}

	if h.svc.Cancel("nope") {
		t.Fatal("cancel of unknown id returned true")
	}

	lc := h.bus.lifecycle()
	want := []LifecycleType{LifecycleCreated, LifecycleCancelled, LifecycleCreated, LifecycleTriggered}
	if len(lc) != len(want) {
		t.Fatalf("lifecycle events %v, want %v", lc, want)
	}
	for i := range want {
		if lc[i] != want[i] {
			t.Fatalf("lifecycle events %v, want %v", lc, want)
		}
	}
}

func TestCleanupRetention(t *testing.T) {
	recent := t0.Add(-30 * time.Minute)
	old := t0.Add(-2 * time.Hour)
	repo := &memRepo{schedules: []models.AudioSchedule{
		{ID: "pending", ScheduledTime: t0.Add(time.Hour), Status: models.StatusPending},
		{ID: "triggered-recent", ScheduledTime: recent, Status: models.StatusTriggered, TriggeredAt: &recent},
		{ID: "triggered-old", ScheduledTime: old, Status: models.StatusTriggered, TriggeredAt: &old},
		{ID: "skipped-recent", ScheduledTime: recent, Status: models.StatusSkipped, SkipReason: models.SkipNotIdle},
		{ID: "skipped-old", ScheduledTime: old, Status: models.StatusSkipped, SkipReason: models.SkipNotIdle},
		{ID: "expired", ScheduledTime: recent, Status: models.StatusExpired},
	}}
	h := newHarness(t, repo)

	kept := map[string]bool{}
	for _, s := range h.svc.Schedules() {
		kept[s.ID] = true
	}
	for _, id := range []string{"pending", "triggered-recent", "skipped-recent"} {
		if !kept[id] {
			t.Fatalf("%s should be kept", id)
		}
	}
	for _, id := range []string{"triggered-old", "skipped-old", "expired"} {
		if kept[id] {
			t.Fatalf("%s should be removed", id)
		}
	}
	if len(repo.schedules) != 3 {
		t.Fatalf("persisted %d schedules, want 3", len(repo.schedules))
	}

	h.clk.Advance(45 * time.Minute)
	if removed := h.svc.Cleanup(); removed != 2 {
		t.Fatalf("second sweep removed %d, want 2", removed)
	}
}

func TestRunSweepsOnInterval(t *testing.T) {
	recent := t0.Add(-30 * time.Minute)
	repo := &memRepo{schedules: []models.AudioSchedule{
		{ID: "skipped-recent", ScheduledTime: recent, Status: models.StatusSkipped, SkipReason: models.SkipNotIdle},
	}}
	h := newHarness(t, repo, WithCleanupInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.svc.Run(ctx) }()

	h.armed(t, 1)
	h.clk.Advance(time.Hour)
	deadline := time.Now().Add(2 * time.Second)
	for len(h.svc.Schedules()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("ticker sweep did not remove the old schedule")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	repo := &memRepo{saveErr: errors.New("disk full")}
	h := newHarness(t, repo)

	rec, err := h.svc.Create(context.Background(), relative(2))
	if err != nil {
		t.Fatalf("Create should not fail on persistence errors: %v", err)
	}
	if _, ok := h.svc.Schedule(rec.ID); !ok {
		t.Fatal("schedule lost after failed save")
	}
	if repo.saves == 0 {
		t.Fatal("expected a save attempt")
	}
	h.clk.Advance(2 * time.Minute)
	h.status(t, rec.ID, models.StatusTriggered)
	if _, plays := h.display.played(); plays != 1 {
		t.Fatalf("plays %d", plays)
	}
}

func TestCloseDisarmsTimers(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.svc.Create(context.Background(), relative(1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.armed(t, 1)
	h.svc.Close()
	h.armed(t, 0)
	h.clk.Advance(time.Minute)
	if _, plays := h.display.played(); plays != 0 {
		t.Fatal("closed service fired")
	}
	if len(h.svc.Pending()) != 1 {
		t.Fatal("pending schedule should survive close for the next start")
	}
}

func TestSchedulesNewestFirst(t *testing.T) {
	h := newHarness(t, nil)
	first, _ := h.svc.Create(context.Background(), relative(30))
	h.clk.Advance(time.Second)
	second, _ := h.svc.Create(context.Background(), relative(5))

	all := h.svc.Schedules()
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatalf("unexpected order %+v", all)
	}
	pending := h.svc.Pending()
	if pending[0].ID != second.ID {
		t.Fatalf("pending should be soonest first, got %+v", pending)
	}
}
