package relay

import (
	"github.com/gin-gonic/gin"
	"github.com/loykin/taskbridge/internal/exchange"
	"github.com/loykin/taskbridge/internal/reentry"
)

// Signal stream message types.
const (
	MessageHello      = "hello"
	MessageInvalidate = "invalidate"
)

// SignalMessage is sent on the websocket signal stream. It carries no task
// data: receivers re-read the snapshot.
type SignalMessage struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Version uint64 `json:"version"`
}

// ExecuteRequest is the JSON form of a bridged exchange.
type ExecuteRequest struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  []exchange.Header `json:"headers"`
	Body     string            `json:"body"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	WantBody bool              `json:"wantBody"`
}

func (r ExecuteRequest) exchange() exchange.Request {
	req := exchange.Request{
		URL:              r.URL,
		Method:           r.Method,
		Headers:          r.Headers,
		WantResponseBody: r.WantBody,
	}
	if r.Body != "" {
		req.Body = []byte(r.Body)
	}
	if r.Username != "" || r.Password != "" {
		req.Credentials = &exchange.Credentials{Username: r.Username, Password: r.Password}
	}
	return req
}

type kvRequest struct {
	Key     string  `json:"key"`
	Value   *string `json:"value"`
	Default string  `json:"default"`
}

type kvResponse struct {
	Value string `json:"value"`
}

type alertRequest struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	IfBackground bool   `json:"ifBackground"`
}

type alertResponse struct {
	Shown bool `json:"shown"`
}

// TakeResponse is returned by the re-entry take endpoint.
type TakeResponse struct {
	Action  reentry.Action `json:"action"`
	Pending bool           `json:"pending"`
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}
