package exchange

import "strings"

// Local failure sentinels. They are never valid wire status codes.
const (
	StatusMalformedURL        = -1
	StatusTLSHandshakeFailure = -2
	StatusNetworkIO           = -3
	StatusUnsupportedScheme   = -4
	StatusMethodUnsupported   = -5
)

const (
	TextMalformedURL        = "Malformed URL"
	TextTLSHandshakeFailure = "SSL Handshake Error"
	TextNetworkIO           = "Network Error"
	TextUnsupportedScheme   = "Unsupported Protocol"
	TextMethodUnsupported   = "Method Not Supported"
	TextCancelled           = "Request Cancelled"
	TextTimeout             = "Request Timeout"
)

// DefaultContentType is sent with a non-empty body unless a caller header overrides it.
const DefaultContentType = "application/octet-stream"

// Header represents a single request header. Names are case-insensitive.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Credentials enable Basic authentication when both fields are non-empty.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

func (c *Credentials) usable() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// Request is one exchange to perform. Method defaults to GET.
type Request struct {
	URL              string
	Method           string
	Headers          []Header
	Body             []byte
	Credentials      *Credentials
	WantResponseBody bool
}

// Result is the outcome of an exchange. Status is either the wire status code or
// one of the negative local failure sentinels.
type Result struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	FinalURL   string            `json:"finalUrl,omitempty"`
}

// Failed reports whether the exchange ended in a local failure class.
func (r Result) Failed() bool {
	return r.Status < 0
}

func failure(status int, text string) Result {
	return Result{Status: status, StatusText: text, Headers: map[string]string{}}
}

// hasHeader reports whether the caller supplied the named header.
func hasHeader(hs []Header, name string) bool {
	for _, h := range hs {
		if strings.EqualFold(strings.TrimSpace(h.Name), name) {
			return true
		}
	}
	return false
}
