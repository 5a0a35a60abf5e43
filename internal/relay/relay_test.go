package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/taskbridge/internal/exchange"
	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/snapshot"
)

type fakeBridge struct {
	mu       sync.Mutex
	snaps    *snapshot.Store
	kv       map[string]string
	lastReq  exchange.Request
	notified []string
	alerts   []string
	visible  bool
}

func newFakeBridge(snaps *snapshot.Store) *fakeBridge {
	return &fakeBridge{snaps: snaps, kv: map[string]string{}}
}

func (b *fakeBridge) Execute(_ context.Context, req exchange.Request) exchange.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastReq = req
	return exchange.Result{Status: 207, StatusText: "Multi-Status", Headers: map[string]string{"dav": "1,2"}, Body: "ok"}
}

func (b *fakeBridge) KVPut(_ context.Context, key string, value *string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if value == nil {
		delete(b.kv, key)
		return
	}
	b.kv[key] = *value
}

func (b *fakeBridge) KVGet(_ context.Context, key, def string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.kv[key]; ok {
		return v
	}
	return def
}

func (b *fakeBridge) KVRemove(_ context.Context, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.kv, key)
}

func (b *fakeBridge) KVClear(context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kv = map[string]string{}
}

func (b *fakeBridge) PublishTaskSnapshot(raw []byte) error {
	_, err := b.snaps.PublishJSON(raw)
	return err
}

func (b *fakeBridge) PublishNotification(title, message string, progress int, actionable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notified = append(b.notified, strings.Join([]string{title, message, strconv.Itoa(progress), strconv.FormatBool(actionable)}, "|"))
}

func (b *fakeBridge) ShowNotification(title, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, title+":"+body)
}

func (b *fakeBridge) ShowNotificationIfAppIsNotOpen(title, body string) bool {
	if b.visible {
		return false
	}
	b.ShowNotification(title, body)
	return true
}

type fixture struct {
	srv    *httptest.Server
	hub    *signal.Hub
	snaps  *snapshot.Store
	bridge *fakeBridge
	mb     *reentry.MemoryMailbox
}

func newFixture(t *testing.T, jwt *VerifyConfig) *fixture {
	t.Helper()
	hub := signal.NewHub(nil)
	snaps := snapshot.NewStore(hub, nil)
	f := &fixture{hub: hub, snaps: snaps, bridge: newFakeBridge(snaps), mb: reentry.NewMemoryMailbox()}
	s := NewServer(ServerOptions{
		Bridge:       f.bridge,
		Snapshots:    snaps,
		Hub:          hub,
		Mailbox:      f.mb,
		Metrics:      metrics.New(),
		JWT:          jwt,
		PingInterval: 50 * time.Millisecond,
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		f.srv.Close()
	})
	return f
}

func (f *fixture) client(t *testing.T, opts ClientOptions) *Client {
	t.Helper()
	opts.BaseURL = f.srv.URL
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "ftp://host", "http://"} {
		if _, err := NewClient(ClientOptions{BaseURL: u}); err == nil {
			t.Errorf("%q: expected error", u)
		}
	}
}

func TestClient_SnapshotRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	c := f.client(t, ClientOptions{})
	ctx := context.Background()

	snap, err := c.Load(ctx)
	if err != nil || !snap.IsEmpty() || snap.Tasks == nil {
		t.Fatalf("empty Load = %+v %v", snap, err)
	}

	if err := c.PublishTasks(ctx, []byte(`[{"id":"1","title":"A","isDone":false},{"id":2,"title":"B","isDone":true}]`)); err != nil {
		t.Fatalf("PublishTasks: %v", err)
	}
	snap, err = c.Load(ctx)
	if err != nil || snap.Version != 1 || len(snap.Tasks) != 2 || snap.Tasks[1].ID != "2" || !snap.Tasks[1].IsDone {
		t.Fatalf("Load = %+v %v", snap, err)
	}

	if err := c.PublishTasks(ctx, []byte(`{"oops":true}`)); err == nil {
		t.Fatal("malformed snapshot should be rejected")
	}
	if cur := f.snaps.Current(); cur.Version != 1 {
		t.Fatalf("rejected publish replaced snapshot: %+v", cur)
	}
}

func TestClient_ReentryMailbox(t *testing.T) {
	f := newFixture(t, nil)
	var mb reentry.Mailbox = f.client(t, ClientOptions{})
	ctx := context.Background()

	if err := mb.Post(ctx, reentry.Action{Code: reentry.CodeAddTask, Source: reentry.SourceWidget}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := mb.Post(ctx, reentry.Action{Code: "BOGUS", Source: reentry.SourceWidget}); err == nil {
		t.Fatal("invalid action accepted")
	}
	a, ok, err := mb.Take(ctx)
	if err != nil || !ok || a.Code != reentry.CodeAddTask {
		t.Fatalf("Take = %+v %v %v", a, ok, err)
	}
	if _, ok, _ := mb.Take(ctx); ok {
		t.Fatal("action taken twice")
	}
}

func TestClient_BridgeCalls(t *testing.T) {
	f := newFixture(t, nil)
	c := f.client(t, ClientOptions{})
	ctx := context.Background()

	res, err := c.Execute(ctx, ExecuteRequest{URL: "http://dav.example/x", Method: "PROPFIND", Body: "<d/>", Username: "u", Password: "p"})
	if err != nil || res.Status != 207 || res.Headers["dav"] != "1,2" {
		t.Fatalf("Execute = %+v %v", res, err)
	}
	got := f.bridge.lastReq
	if got.Method != "PROPFIND" || string(got.Body) != "<d/>" || got.Credentials == nil || got.Credentials.Username != "u" {
		t.Fatalf("forwarded request = %+v", got)
	}

	if err := c.KVSet(ctx, "k", "v"); err != nil {
		t.Fatalf("KVSet: %v", err)
	}
	if v, _ := c.KVGet(ctx, "k", "d"); v != "v" {
		t.Fatalf("KVGet = %q", v)
	}
	if err := c.KVRemove(ctx, "k"); err != nil {
		t.Fatalf("KVRemove: %v", err)
	}
	if v, _ := c.KVGet(ctx, "k", "d"); v != "d" {
		t.Fatalf("KVGet after remove = %q", v)
	}
	_ = c.KVSet(ctx, "a", "1")
	if err := c.KVClear(ctx); err != nil {
		t.Fatalf("KVClear: %v", err)
	}
	if v, _ := c.KVGet(ctx, "a", "d"); v != "d" {
		t.Fatalf("KVGet after clear = %q", v)
	}
	if err := c.KVSet(ctx, "", "v"); err == nil {
		t.Fatal("empty key accepted")
	}

	if err := c.PublishNotification(ctx, "T", "M", 42, true); err != nil {
		t.Fatalf("PublishNotification: %v", err)
	}
	if len(f.bridge.notified) != 1 || f.bridge.notified[0] != "T|M|42|true" {
		t.Fatalf("notified = %v", f.bridge.notified)
	}
}

func TestServer_KVSetNullDeletes(t *testing.T) {
	f := newFixture(t, nil)
	c := f.client(t, ClientOptions{})
	ctx := context.Background()

	for _, body := range []string{`{"key":"k","value":null}`, `{"key":"k"}`} {
		if err := c.KVSet(ctx, "k", "v"); err != nil {
			t.Fatalf("KVSet: %v", err)
		}
		resp, err := http.Post(f.srv.URL+"/v1/bridge/kv/set", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post %s: %v", body, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("%s: status = %d", body, resp.StatusCode)
		}
		if v, _ := c.KVGet(ctx, "k", "default"); v != "default" {
			t.Fatalf("%s: KVGet = %q, want the default", body, v)
		}
	}

	if err := c.KVSet(ctx, "k", ""); err != nil {
		t.Fatalf("KVSet empty: %v", err)
	}
	if v, _ := c.KVGet(ctx, "k", "default"); v != "" {
		t.Fatalf("empty string must be stored, got %q", v)
	}
	if err := c.KVPut(ctx, "k", nil); err != nil {
		t.Fatalf("KVPut nil: %v", err)
	}
	if v, _ := c.KVGet(ctx, "k", "default"); v != "default" {
		t.Fatalf("KVPut nil left %q", v)
	}
}

func TestServer_NotificationDefaultsToIdleProgress(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Post(f.srv.URL+"/v1/bridge/notification", "application/json", strings.NewReader(`{"title":"T"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || f.bridge.notified[0] != "T||-1|false" {
		t.Fatalf("status=%d notified=%v", resp.StatusCode, f.bridge.notified)
	}
}

func TestServer_AlertRoute(t *testing.T) {
	f := newFixture(t, nil)
	f.bridge.visible = true
	resp, err := http.Post(f.srv.URL+"/v1/bridge/alert", "application/json", strings.NewReader(`{"title":"T","body":"B","ifBackground":true}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if len(f.bridge.alerts) != 0 {
		t.Fatalf("alert shown while visible: %v", f.bridge.alerts)
	}
	resp, _ = http.Post(f.srv.URL+"/v1/bridge/alert", "application/json", strings.NewReader(`{"title":"T","body":"B"}`))
	_ = resp.Body.Close()
	if len(f.bridge.alerts) != 1 {
		t.Fatalf("alerts = %v", f.bridge.alerts)
	}
}

func TestServer_JWTGuard(t *testing.T) {
	secret := "relay-secret"
	f := newFixture(t, &VerifyConfig{Secret: []byte(secret), AllowedIssuer: "taskbridge", ClockSkew: time.Second})
	ctx := context.Background()

	if _, err := f.client(t, ClientOptions{}).Load(ctx); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("unauthenticated Load = %v", err)
	}
	wrong := f.client(t, ClientOptions{Token: TokenConfig{Secret: "other", Issuer: "taskbridge"}})
	if _, err := wrong.Load(ctx); err == nil {
		t.Fatal("wrong secret accepted")
	}
	badIss := f.client(t, ClientOptions{Token: TokenConfig{Secret: secret, Issuer: "someone"}})
	if _, err := badIss.Load(ctx); err == nil {
		t.Fatal("wrong issuer accepted")
	}
	ok := f.client(t, ClientOptions{Token: TokenConfig{Secret: secret, Issuer: "taskbridge"}})
	if _, err := ok.Load(ctx); err != nil {
		t.Fatalf("authenticated Load: %v", err)
	}

	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should stay open: %v", err)
	}
	_ = resp.Body.Close()
}

func TestTokenConfig_Issue(t *testing.T) {
	if _, err := (TokenConfig{}).Issue(); err == nil {
		t.Fatal("expected error without secret")
	}
	tok, err := TokenConfig{Secret: "s", TTL: time.Minute, Subject: "widget"}.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := VerifyConfig{Secret: []byte("s")}.parse(tok)
	if err != nil || claims.Subject != "widget" {
		t.Fatalf("parse = %+v %v", claims, err)
	}
	expired, _ := TokenConfig{Secret: "s", TTL: time.Nanosecond}.Issue()
	time.Sleep(1100 * time.Millisecond)
	if _, err := (VerifyConfig{Secret: []byte("s")}).parse(expired); err == nil {
		t.Fatal("expired token accepted")
	}
}

type topicRecorder struct {
	mu     sync.Mutex
	topics []signal.Topic
	ch     chan signal.Topic
}

func newTopicRecorder() *topicRecorder {
	return &topicRecorder{ch: make(chan signal.Topic, 64)}
}

func (r *topicRecorder) Emit(t signal.Topic) {
	r.mu.Lock()
	r.topics = append(r.topics, t)
	r.mu.Unlock()
	select {
	case r.ch <- t:
	default:
	}
}

func (r *topicRecorder) next(t *testing.T) signal.Topic {
	t.Helper()
	select {
	case topic := <-r.ch:
		return topic
	case <-time.After(3 * time.Second):
		t.Fatal("no signal received")
		return ""
	}
}

func TestClient_FollowForwardsInvalidations(t *testing.T) {
	f := newFixture(t, nil)
	rec := newTopicRecorder()
	c := f.client(t, ClientOptions{Emitter: rec, ReconnectDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Follow(ctx, signal.TopicWidget) }()

	if got := rec.next(t); got != signal.TopicWidget {
		t.Fatalf("connect refresh = %q", got)
	}
	waitSubscribers(t, f.hub, signal.TopicWidget, 1)

	f.snaps.Publish([]snapshot.Task{{ID: "1", Title: "A"}})
	if got := rec.next(t); got != signal.TopicWidget {
		t.Fatalf("forwarded = %q", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Follow = %v", err)
	}
}

func TestClient_FollowReconnectEmitsRefresh(t *testing.T) {
	hub := signal.NewHub(nil)
	snaps := snapshot.NewStore(hub, nil)
	srv := httptest.NewServer(NewServer(ServerOptions{Snapshots: snaps, Hub: hub}).Handler())
	defer srv.Close()

	rec := newTopicRecorder()
	c, err := NewClient(ClientOptions{BaseURL: srv.URL, Emitter: rec, ReconnectDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Follow(ctx, "") }()

	// initial connect refreshes every topic
	first := map[signal.Topic]bool{rec.next(t): true, rec.next(t): true}
	if !first[signal.TopicNotification] || !first[signal.TopicWidget] {
		t.Fatalf("initial refresh = %v", first)
	}
	waitSubscribers(t, hub, signal.TopicNotification, 1)

	// closing the hub ends the server side of the stream
	hub.Close()
	second := map[signal.Topic]bool{rec.next(t): true, rec.next(t): true}
	if !second[signal.TopicNotification] || !second[signal.TopicWidget] {
		t.Fatalf("reconnect refresh = %v", second)
	}
}

func TestServer_SignalsRejectsUnknownTopic(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/v1/signals?topic=bogus")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	hub := signal.NewHub(nil)
	defer hub.Close()
	s := NewServer(ServerOptions{Addr: "127.0.0.1:0", Snapshots: snapshot.NewStore(hub, nil), Hub: hub})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func waitSubscribers(t *testing.T, hub *signal.Hub, topic signal.Topic, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(topic) < n {
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber for %s", topic)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
