package exchange

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/httpc"
	"github.com/loykin/taskbridge/internal/metrics"
)

// Executor performs bridged HTTP exchanges. It is safe for concurrent use.
type Executor struct {
	client  *resty.Client
	metrics *metrics.Metrics
	logger  *common.Logger
}

// Options configures an Executor. A zero value gives the default transport.
type Options struct {
	HTTP    *httpc.Httpc
	Metrics *metrics.Metrics
	Logger  *common.Logger
}

// NewExecutor builds an Executor over a resty client whose method is a plain string.
func NewExecutor(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Executor{
		client:  opts.HTTP.New(),
		metrics: opts.Metrics,
		logger:  logger.WithComponent("exchange"),
	}
}

// Execute performs req and always returns a Result. Failures never escape as
// errors: they are reported through the negative status sentinels.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	method, ok := ResolveMethod(req.Method)
	if !ok {
		method = req.Method
	}
	logger := e.logger.WithRequest(uuid.NewString(), method, req.URL)

	res := e.execute(ctx, logger, req, method, ok)
	e.metrics.RecordExchange(MethodLabel(method), res.Status, time.Since(start))

	if res.Failed() {
		logger.Warn("exchange failed", "status", res.Status, "status_text", res.StatusText)
	} else {
		logger.Debug("exchange completed", "status", res.Status, "headers", len(res.Headers), "body_size", len(res.Body), "duration", time.Since(start))
	}
	return res
}

func (e *Executor) execute(ctx context.Context, logger *common.Logger, req Request, method string, methodOK bool) Result {
	if code, text, ok := checkURL(req.URL); !ok {
		return failure(code, text)
	}
	if !methodOK {
		return failure(StatusMethodUnsupported, TextMethodUnsupported)
	}

	r := e.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	for _, h := range req.Headers {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			continue
		}
		r.SetHeader(name, h.Value)
	}
	if len(req.Body) > 0 {
		if !hasHeader(req.Headers, "Content-Type") {
			r.SetHeader("Content-Type", DefaultContentType)
		}
		r.SetContentLength(true)
		r.SetBody(req.Body)
	}
	if req.Credentials.usable() {
		r.SetBasicAuth(req.Credentials.Username, req.Credentials.Password)
	}
	if IsExtensionVerb(method) {
		logger.Debug("sending extension verb")
	}

	resp, err := r.Execute(method, strings.TrimSpace(req.URL))
	if resp != nil && resp.RawBody() != nil {
		defer func() { _ = resp.RawBody().Close() }()
	}
	if err != nil {
		code, text := classify(ctx, err)
		logger.Debug("transport error", "error", err)
		return failure(code, text)
	}

	status := resp.StatusCode()
	res := Result{
		Status:     status,
		StatusText: reasonPhrase(status, resp.Status()),
		Headers:    foldHeaders(resp.Header()),
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		res.FinalURL = raw.Request.URL.String()
	}

	if req.WantResponseBody && status >= 200 && status <= 299 && resp.RawBody() != nil {
		body, err := io.ReadAll(resp.RawBody())
		if err != nil {
			code, text := classify(ctx, err)
			logger.Debug("reading response body failed", "error", err)
			return failure(code, text)
		}
		res.Body = string(body)
	}
	return res
}

// reasonPhrase extracts the text after the code in "200 OK", falling back to
// the standard text when the server sent none.
func reasonPhrase(code int, status string) string {
	text := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
	if text == "" {
		return http.StatusText(code)
	}
	return text
}
