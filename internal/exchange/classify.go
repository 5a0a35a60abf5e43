package exchange

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
)

// classify maps a transport error onto a local failure sentinel.
func classify(ctx context.Context, err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return StatusNetworkIO, TextCancelled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return StatusNetworkIO, TextTimeout
	case isTLSFailure(err):
		return StatusTLSHandshakeFailure, TextTLSHandshakeFailure
	case strings.Contains(err.Error(), "unsupported protocol scheme"):
		return StatusUnsupportedScheme, TextUnsupportedScheme
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return StatusNetworkIO, TextTimeout
	}
	return StatusNetworkIO, TextNetworkIO
}

func isTLSFailure(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	if errors.As(err, &recordErr) || errors.As(err, &verifyErr) || errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls: ") || strings.Contains(msg, "x509: ")
}

// checkURL validates the target before any I/O happens.
func checkURL(raw string) (int, string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil && u.Scheme != "" && u.Opaque != "" {
			return StatusUnsupportedScheme, TextUnsupportedScheme, false
		}
		return StatusMalformedURL, TextMalformedURL, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return 0, "", true
	default:
		return StatusUnsupportedScheme, TextUnsupportedScheme, false
	}
}
