package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/exchange"
	"github.com/loykin/taskbridge/internal/httpc"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/snapshot"
)

// ClientOptions configures a Client. BaseURL is required.
type ClientOptions struct {
	BaseURL string
	// Token mints a bearer token per request when Secret is set.
	Token TokenConfig
	HTTP  *httpc.Httpc
	// Emitter receives a signal for every invalidation the relay forwards
	// and once after every (re)connect.
	Emitter signal.Emitter

	ReconnectDelay  time.Duration
	ReconnectMaxGap time.Duration
}

// Client talks to a relay from another process. It is a snapshot.Source and
// a reentry.Mailbox, so a widget host can run entirely on top of it.
type Client struct {
	opts   ClientOptions
	base   *url.URL
	rest   *resty.Client
	logger *common.Logger
}

func NewClient(opts ClientOptions) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid relay url %q", opts.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("relay url must be http or https, got %q", base.Scheme)
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = constants.DefaultReconnectDelay
	}
	if opts.ReconnectMaxGap <= 0 {
		opts.ReconnectMaxGap = constants.DefaultReconnectMaxGap
	}

	c := &Client{opts: opts, base: base, logger: common.GetLogger().WithComponent("relay-client")}
	c.rest = opts.HTTP.New().
		SetBaseURL(base.String()).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			tok, err := c.bearer()
			if err != nil {
				return err
			}
			if tok != "" {
				r.SetAuthToken(tok)
			}
			return nil
		})
	return c, nil
}

func (c *Client) bearer() (string, error) {
	if c.opts.Token.Secret == "" {
		return "", nil
	}
	return c.opts.Token.Issue()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("relay %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("relay %s %s: %s: %s", method, path, resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// Load implements snapshot.Source
func (c *Client) Load(ctx context.Context) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/snapshot", nil, &snap); err != nil {
		return snapshot.Snapshot{}, err
	}
	if snap.Tasks == nil {
		snap.Tasks = []snapshot.Task{}
	}
	return snap, nil
}

// Post implements reentry.Mailbox
func (c *Client) Post(ctx context.Context, a reentry.Action) error {
	return c.do(ctx, http.MethodPost, "/v1/reentry", a, nil)
}

// Take implements reentry.Mailbox
func (c *Client) Take(ctx context.Context) (reentry.Action, bool, error) {
	var out TakeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/reentry/take", nil, &out); err != nil {
		return reentry.Action{}, false, err
	}
	return out.Action, out.Pending, nil
}

// Execute forwards an exchange through the relay's bridge.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (exchange.Result, error) {
	var res exchange.Result
	err := c.do(ctx, http.MethodPost, "/v1/bridge/execute", req, &res)
	return res, err
}

// KVGet reads key through the relay's bridge.
func (c *Client) KVGet(ctx context.Context, key, def string) (string, error) {
	var out kvResponse
	if err := c.do(ctx, http.MethodPost, "/v1/bridge/kv/get", kvRequest{Key: key, Default: def}, &out); err != nil {
		return def, err
	}
	return out.Value, nil
}

// KVSet stores value under key through the relay's bridge.
func (c *Client) KVSet(ctx context.Context, key, value string) error {
	return c.KVPut(ctx, key, &value)
}

// KVPut stores *value under key; a nil value removes the key.
func (c *Client) KVPut(ctx context.Context, key string, value *string) error {
	return c.do(ctx, http.MethodPost, "/v1/bridge/kv/set", kvRequest{Key: key, Value: value}, nil)
}

func (c *Client) KVRemove(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/v1/bridge/kv/remove", kvRequest{Key: key}, nil)
}

func (c *Client) KVClear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/bridge/kv/clear", nil, nil)
}

// PublishTasks sends a raw task list to the relay.
func (c *Client) PublishTasks(ctx context.Context, raw []byte) error {
	return c.do(ctx, http.MethodPost, "/v1/bridge/tasks", raw, nil)
}

// PublishNotification pushes a notification state through the relay.
func (c *Client) PublishNotification(ctx context.Context, title, message string, progress int, actionable bool) error {
	body := map[string]any{"title": title, "message": message, "progress": progress, "actionable": actionable}
	return c.do(ctx, http.MethodPost, "/v1/bridge/notification", body, nil)
}

func (c *Client) signalsURL(topic signal.Topic) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/signals"
	if topic != "" {
		u.RawQuery = url.Values{"topic": {string(topic)}}.Encode()
	}
	return u.String()
}

// Follow keeps a signal stream open and re-emits its invalidations into the
// local emitter until ctx ends. Every successful (re)connect emits once more,
// since signals may have been missed while disconnected.
func (c *Client) Follow(ctx context.Context, topic signal.Topic) error {
	if c.opts.Emitter == nil {
		return errors.New("relay client has no emitter to follow into")
	}
	delay := c.opts.ReconnectDelay
	for {
		connected, err := c.stream(ctx, topic)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = c.opts.ReconnectDelay
		}
		c.logger.Warn("signal stream lost, reconnecting", "error", err, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, c.opts.ReconnectMaxGap)
	}
}

func (c *Client) emit(topic signal.Topic) {
	if topic == "" {
		for _, t := range signal.Topics() {
			c.opts.Emitter.Emit(t)
		}
		return
	}
	c.opts.Emitter.Emit(topic)
}

func (c *Client) stream(ctx context.Context, topic signal.Topic) (bool, error) {
	header := http.Header{}
	tok, err := c.bearer()
	if err != nil {
		return false, err
	}
	if tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	if c.opts.HTTP != nil {
		dialer.TLSClientConfig = c.opts.HTTP.TlsConfig
	}
	conn, resp, err := dialer.DialContext(ctx, c.signalsURL(topic), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.logger.Debug("signal stream connected", "topic", string(topic))
	c.emit(topic)

	for {
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, err
		}
		if msg.Type == MessageInvalidate {
			c.emit(signal.Topic(msg.Topic))
		}
	}
}
