package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/snapshot"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingSurface struct {
	mu      sync.Mutex
	renders []Rendering
	alerts  []Alert
	err     error
}

func (s *recordingSurface) Render(r Rendering) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renders = append(s.renders, r)
	return s.err
}

func (s *recordingSurface) Alert(a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func (s *recordingSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.renders)
}

func TestState_Mode(t *testing.T) {
	tests := []struct {
		progress int
		want     Mode
	}{
		{ProgressNone, ModeIdle},
		{ProgressSyncing, ModeSyncing},
		{ProgressActiveNoPercentage, ModeActiveTask},
		{0, ModeActiveTask},
		{42, ModeActiveTask},
		{100, ModeActiveTask},
		{150, ModeActiveTask},
		{-7, ModeIdle},
	}
	for _, tt := range tests {
		if got := (State{Progress: tt.progress}).Mode(); got != tt.want {
			t.Errorf("progress %d: mode %s, want %s", tt.progress, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		mode      Mode
		indicator Indicator
		percent   int
		buttons   int
	}{
		{"idle", State{Title: "T", Message: "M", Progress: -1}, ModeIdle, IndicatorNone, 0, 0},
		{"idle ignores actionable", State{Progress: -1, Actionable: true}, ModeIdle, IndicatorNone, 0, 0},
		{"syncing", State{Progress: ProgressSyncing, Actionable: true}, ModeSyncing, IndicatorSpinner, 0, 0},
		{"active", State{Title: "T", Message: "M", Progress: 42, Actionable: true}, ModeActiveTask, IndicatorBar, 42, 2},
		{"active not actionable", State{Progress: 42}, ModeActiveTask, IndicatorBar, 42, 0},
		{"no percentage", State{Progress: ProgressActiveNoPercentage, Actionable: true}, ModeActiveTask, IndicatorPulse, 0, 2},
		{"clamped", State{Progress: 250}, ModeActiveTask, IndicatorBar, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := build(tt.state)
			if r.Mode != tt.mode || r.Indicator != tt.indicator || r.Percent != tt.percent || len(r.Buttons) != tt.buttons {
				t.Fatalf("got %+v", r)
			}
		})
	}
}

func TestController_IdleAndActiveRender(t *testing.T) {
	surf := &recordingSurface{}
	c := NewController(Options{Surface: surf})

	c.Push(State{Title: "T", Message: "M", Progress: -1})
	r, _ := c.Last()
	if r.Mode != ModeIdle || len(r.Buttons) != 0 || r.Title != "T" || r.Message != "M" {
		t.Fatalf("idle render = %+v", r)
	}

	c.Push(State{Title: "T", Message: "M", Progress: 42, Actionable: true})
	r, _ = c.Last()
	if r.Mode != ModeActiveTask || r.Indicator != IndicatorBar || r.Percent != 42 {
		t.Fatalf("active render = %+v", r)
	}
	pause, ok := r.Button(reentry.CodePause)
	if !ok || pause.Label != "Pause" || pause.Action.Source != reentry.SourceNotification {
		t.Fatalf("pause button = %+v %v", pause, ok)
	}
	if _, ok := r.Button(reentry.CodeDone); !ok {
		t.Fatal("missing Done button")
	}
	if !strings.Contains(r.String(), "42%") || !strings.Contains(r.String(), "(Pause|Done)") {
		t.Fatalf("text = %q", r.String())
	}
	if surf.count() != 2 {
		t.Fatalf("renders = %d", surf.count())
	}
}

func TestController_InertDefaults(t *testing.T) {
	surf := &recordingSurface{}
	c := NewController(Options{Surface: surf})
	r := c.Render(context.Background())
	if r.Mode != ModeInert || r.Title != "Task Bridge" || r.Message != "No active task" {
		t.Fatalf("inert = %+v", r)
	}

	store := snapshot.NewStore(nil, nil)
	store.Publish([]snapshot.Task{{ID: "1", Title: "A"}, {ID: "2", Title: "B"}, {ID: "3", Title: "C", IsDone: true}})
	c = NewController(Options{Surface: surf, Snapshots: store, DefaultTitle: "Tasks"})
	r = c.Render(context.Background())
	if r.Title != "Tasks" || r.Message != "2 open tasks" {
		t.Fatalf("inert with snapshot = %+v", r)
	}
}

type brokenSource struct{}

func (brokenSource) Load(context.Context) (snapshot.Snapshot, error) {
	return snapshot.Snapshot{}, errors.New("relay down")
}

func TestController_InertSnapshotErrorFallsBack(t *testing.T) {
	c := NewController(Options{Snapshots: brokenSource{}})
	if r := c.Render(context.Background()); r.Message != "No active task" {
		t.Fatalf("message = %q", r.Message)
	}
}

func TestController_SurfaceErrorIsSwallowed(t *testing.T) {
	surf := &recordingSurface{err: errors.New("no permission")}
	c := NewController(Options{Surface: surf})
	c.Push(State{Progress: 10})
	if r, ok := c.Last(); !ok || r.Percent != 10 {
		t.Fatalf("last = %+v %v", r, ok)
	}
	c.ShowAlert("x", "y")
}

func TestController_RunRendersOnSignal(t *testing.T) {
	hub := signal.NewHub(nil)
	defer hub.Close()
	surf := &recordingSurface{}
	m := metrics.New()
	c := NewController(Options{Surface: surf, Emitter: hub, Metrics: m})
	sub := hub.Subscribe(signal.TopicNotification)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, sub.C()) }()

	waitFor(t, func() bool { return surf.count() >= 1 })
	c.Push(State{Title: "Working", Progress: 5})
	waitFor(t, func() bool {
		r, ok := c.Last()
		return ok && r.Mode == ModeActiveTask && r.Percent == 5
	})

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if got := testutil.ToFloat64(m.SignalsDelivered.WithLabelValues("notification")); got < 1 {
		t.Fatalf("deliveries = %v", got)
	}
}

func TestController_RunStopsWhenWakeCloses(t *testing.T) {
	c := NewController(Options{})
	wake := make(chan struct{})
	close(wake)
	if err := c.Run(context.Background(), wake); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestController_InvokePostsReentryAction(t *testing.T) {
	fg := reentry.NewForeground(nil)
	c := NewController(Options{Foreground: fg})
	ctx := context.Background()

	c.Push(State{Progress: -1})
	if err := c.Invoke(ctx, reentry.CodePause); !errors.Is(err, ErrNoSuchAction) {
		t.Fatalf("idle invoke = %v", err)
	}

	c.Push(State{Progress: 60, Actionable: true})
	if err := c.Invoke(ctx, reentry.CodeDone); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	a, ok := fg.Activate(ctx)
	if !ok || a.Code != reentry.CodeDone || a.Source != reentry.SourceNotification {
		t.Fatalf("delivered %+v %v", a, ok)
	}
	if st, _ := c.State(); st.Progress != 60 {
		t.Fatal("invoking an action must not change the pushed state")
	}
}

func TestController_Alerts(t *testing.T) {
	surf := &recordingSurface{}
	fg := reentry.NewForeground(nil)
	c := NewController(Options{Surface: surf, Foreground: fg})

	c.ShowAlert("", "undefined")
	c.ShowAlert("Reminder", "Stand up")
	if surf.alerts[0].Title != "Task Bridge" || surf.alerts[0].Body != "" {
		t.Fatalf("alert 0 = %+v", surf.alerts[0])
	}
	if surf.alerts[1].Body != "Stand up" {
		t.Fatalf("alert 1 = %+v", surf.alerts[1])
	}

	if !c.ShowAlertIfBackground("bg", "") {
		t.Fatal("background alert should show")
	}
	fg.Activate(context.Background())
	if c.ShowAlertIfBackground("fg", "") {
		t.Fatal("alert shown while in foreground")
	}
	if len(surf.alerts) != 3 {
		t.Fatalf("alerts = %d", len(surf.alerts))
	}
}

func TestTextSurface(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSurface(&buf)
	_ = s.Render(build(State{Title: "Sync", Progress: ProgressSyncing}))
	_ = s.Alert(Alert{Title: "Hi"})
	_ = s.Alert(Alert{Title: "Hi", Body: "there"})
	want := "[syncing] Sync (syncing...)\n(!) Hi\n(!) Hi: there\n"
	if buf.String() != want {
		t.Fatalf("got %q", buf.String())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
