package httpc

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/taskbridge/internal/common"
)

// Default transport bounds for bridged exchanges.
const (
	DefaultConnectTimeout      = 30 * time.Second
	DefaultTLSHandshakeTimeout = 30 * time.Second
	DefaultMaxRedirects        = 10
)

type Httpc struct {
	TlsConfig *tls.Config

	ConnectTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	// Timeout caps a whole exchange. Zero means no cap beyond the caller's context.
	Timeout time.Duration
}

// New returns a resty.Client configured according to the receiver's settings.
// Defaults: MinVersion TLS1.2 when a TLS config is given without one, 30s connect
// and TLS handshake bounds, no retries, GET payloads allowed.
func (h *Httpc) New() *resty.Client {
	if h == nil {
		h = &Httpc{}
	}
	connect := h.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	handshake := h.TLSHandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultTLSHandshakeTimeout
	}

	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   handshake,
		ResponseHeaderTimeout: h.ResponseHeaderTimeout,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if cfg := h.TlsConfig; cfg != nil {
		if cfg.MinVersion == 0 {
			cfg.MinVersion = tls.VersionTLS12
		}
		tr.TLSClientConfig = cfg
	}

	c := resty.New().
		SetTransport(tr).
		SetRetryCount(0).
		SetDisableWarn(true).
		SetLogger(restyLogger{}).
		SetAllowGetMethodPayload(true).
		SetRedirectPolicy(MethodPreservingRedirectPolicy(DefaultMaxRedirects))
	if h.Timeout > 0 {
		c.SetTimeout(h.Timeout)
	}
	return c
}

// MethodPreservingRedirectPolicy follows redirects only when the method
// survives them: GET and HEAD always, anything else on 307 and 308 only.
// net/http rewrites other methods to GET on 301, 302 and 303, so those
// responses are returned to the caller as they are.
func MethodPreservingRedirectPolicy(limit int) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("stopped after %d redirects", limit)
		}
		switch via[len(via)-1].Method {
		case http.MethodGet, http.MethodHead:
			return nil
		}
		if req.Response != nil {
			switch req.Response.StatusCode {
			case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
				return nil
			}
		}
		return http.ErrUseLastResponse
	})
}

// TLSVersion maps "1.0".."1.3" (or "tls1.2" style) to a crypto/tls constant.
// Unknown or empty values yield 0.
func TLSVersion(v string) uint16 {
	switch v {
	case "1.0", "tls1.0", "TLS1.0":
		return tls.VersionTLS10
	case "1.1", "tls1.1", "TLS1.1":
		return tls.VersionTLS11
	case "1.2", "tls1.2", "TLS1.2":
		return tls.VersionTLS12
	case "1.3", "tls1.3", "TLS1.3":
		return tls.VersionTLS13
	default:
		return 0
	}
}

// restyLogger routes resty's internal messages to the shared logger.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	common.GetLogger().WithComponent("httpc").Error(fmt.Sprintf(format, v...))
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	common.GetLogger().WithComponent("httpc").Warn(fmt.Sprintf(format, v...))
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	common.GetLogger().WithComponent("httpc").Debug(fmt.Sprintf(format, v...))
}
