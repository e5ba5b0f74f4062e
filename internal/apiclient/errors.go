package apiclient

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that are not a *Failure.
	KindUnknown Kind = iota
	// KindUnauthenticated means no credential was present; no call was issued.
	KindUnauthenticated
	// KindAuthExpired means the credential was rejected or its subject is no
	// longer authorized (HTTP 401 or 403).
	KindAuthExpired
	// KindServerError means the server answered with another non-success status.
	KindServerError
	// KindUnreachable means no response was received.
	KindUnreachable
	// KindValidation means bad input was detected locally, before any call.
	KindValidation
)

// String returns the name of the failure kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAuthExpired:
		return "auth_expired"
	case KindServerError:
		return "server_error"
	case KindUnreachable:
		return "unreachable"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Failure is the error returned for every classified failure.
type Failure struct {
	Kind Kind
	// Status is the HTTP status code, zero when no response was received.
	Status int
	// Detail is the human-readable message from the server or the local check.
	Detail string
	// Endpoint is the path that was called.
	Endpoint string
	// Cause is the transport error for KindUnreachable.
	Cause error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	switch f.Kind {
	case KindUnauthenticated:
		return "not logged in"
	case KindAuthExpired:
		if f.Detail != "" {
			return fmt.Sprintf("session expired: %s", f.Detail)
		}
		return "session expired"
	case KindServerError:
		return fmt.Sprintf("server error (%d): %s", f.Status, f.Detail)
	case KindUnreachable:
		if f.Cause != nil {
			return fmt.Sprintf("%s unreachable (%s): %v", f.Endpoint, ClassifyConnection(f.Cause), f.Cause)
		}
		return fmt.Sprintf("%s unreachable", f.Endpoint)
	case KindValidation:
		return f.Detail
	default:
		return f.Detail
	}
}

// Unwrap returns the transport cause, if any.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Is matches another *Failure of the same kind, so errors.Is(err, ErrAuthExpired) works.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

// Sentinels for errors.Is matching by kind.
var (
	ErrUnauthenticated = &Failure{Kind: KindUnauthenticated}
	ErrAuthExpired     = &Failure{Kind: KindAuthExpired}
	ErrServerError     = &Failure{Kind: KindServerError}
	ErrUnreachable     = &Failure{Kind: KindUnreachable}
	ErrValidation      = &Failure{Kind: KindValidation}
)

// NewValidation returns a KindValidation failure with the given message.
func NewValidation(detail string) *Failure {
	return &Failure{Kind: KindValidation, Detail: detail}
}

// KindOf returns the kind of err, or KindUnknown when err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsAuthExpired reports whether err is an AuthExpired failure.
func IsAuthExpired(err error) bool {
	return KindOf(err) == KindAuthExpired
}

// ConnectionErrorType categorizes why no response was received.
type ConnectionErrorType int

const (
	ConnectionErrorUnknown ConnectionErrorType = iota
	ConnectionErrorTLS
	ConnectionErrorNetwork
	ConnectionErrorTimeout
	ConnectionErrorDNS
)

// String returns a human-readable name for the connection error type.
func (t ConnectionErrorType) String() string {
	switch t {
	case ConnectionErrorTLS:
		return "TLS certificate error"
	case ConnectionErrorNetwork:
		return "Network error"
	case ConnectionErrorTimeout:
		return "Connection timeout"
	case ConnectionErrorDNS:
		return "DNS resolution error"
	default:
		return "Connection error"
	}
}

// ClassifyConnection inspects a transport error and returns its category.
func ClassifyConnection(err error) ConnectionErrorType {
	if err == nil {
		return ConnectionErrorUnknown
	}
	if isTLSError(err) {
		return ConnectionErrorTLS
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ConnectionErrorDNS
	}
	if isTimeoutError(err) {
		return ConnectionErrorTimeout
	}
	if isNetworkError(err.Error()) {
		return ConnectionErrorNetwork
	}
	return ConnectionErrorUnknown
}

func isTLSError(err error) bool {
	var certErr *x509.CertificateInvalidError
	var hostErr *x509.HostnameError
	var unknownAuthErr *x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &unknownAuthErr) {
		return true
	}

	errStr := err.Error()
	for _, keyword := range []string{"x509:", "certificate", "tls:", "TLS handshake"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

func isNetworkError(errStr string) bool {
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"dial tcp",
		"connect:",
	} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
