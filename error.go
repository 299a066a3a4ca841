package apns

import (
	"fmt"
	"net/http"
	"time"
)

// CredentialKind identifies what was wrong with a credential input.
type CredentialKind int

// Credential failure kinds.
const (
	InvalidFormat CredentialKind = iota
	WrongPassphrase
	UnsupportedAlgorithm
)

func (k CredentialKind) String() string {
	switch k {
	case WrongPassphrase:
		return "wrong passphrase"
	case UnsupportedAlgorithm:
		return "unsupported algorithm"
	default:
		return "invalid format"
	}
}

// CredentialError describes a failure to load or use a client
// credential: a malformed certificate container, an incorrect
// passphrase or a private key with an unsupported signing algorithm.
// It is always surfaced before any network attempt.
type CredentialError struct {
	Kind CredentialKind
	Err  error // underlying parser error, may be nil
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("apns: credential: %s: %s", e.Kind, e.Err)
	}
	return "apns: credential: " + e.Kind.String()
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ValidationKind identifies the rule a notification violated.
type ValidationKind int

// Notification validation failure kinds.
const (
	BadDeviceToken ValidationKind = iota
	MissingTopic
	PayloadTooLarge
	InvalidPushType
	ConflictingFields
	BadNotificationID
	BadPriority
)

func (k ValidationKind) String() string {
	switch k {
	case BadDeviceToken:
		return "bad device token"
	case MissingTopic:
		return "missing topic"
	case PayloadTooLarge:
		return "payload too large"
	case InvalidPushType:
		return "invalid push type"
	case ConflictingFields:
		return "conflicting fields"
	case BadNotificationID:
		return "bad notification id"
	case BadPriority:
		return "bad priority"
	default:
		return "invalid notification"
	}
}

// ValidationError describes a notification rejected by the builder.
// Such a notification is never sent over the wire.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("apns: %s: %s", e.Kind, e.Detail)
	}
	return "apns: " + e.Kind.String()
}

// ResponseError describes the error response from the server.
type ResponseError struct {
	// The HTTP status code:
	// 	400 - Bad request
	// 	403 - There was an error with the certificate or provider token.
	// 	404 - The request used a bad :path value.
	// 	405 - The request used a bad :method value. Only POST requests are supported.
	// 	410 - The device token is no longer active for the topic.
	// 	413 - The notification payload was too large.
	// 	429 - The server received too many requests for the same device token.
	// 	500 - Internal server error.
	// 	503 - The server is shutting down and unavailable.
	Status int

	// The error indicating the reason for the failure.
	Reason Reason `json:"reason"`

	// If the value of Status is 410, the value of this key is the last
	// time at which APNs confirmed that the device token was no longer
	// valid for the topic, in milliseconds since the epoch.
	//
	// Stop pushing notifications until the device registers a token
	// with a later timestamp with your provider.
	Timestamp int64 `json:"timestamp"`

	// The apns-id from the response headers, if any.
	ID string `json:"-"`

	// Server-supplied retry hint, zero when absent.
	RetryAfter time.Duration `json:"-"`
}

// Error returns the full error description string.
func (e *ResponseError) Error() string {
	msg := e.Reason.Description()
	if msg == "" {
		if msg = http.StatusText(e.Status); msg == "" {
			msg = string(e.Reason)
		}
	}
	return "apns: " + msg
}

// Time returns the parsed timestamp returned by the server with the
// response. If the value of Status is 410, the returned value is the
// last time at which APNs confirmed that the device token was no
// longer valid for the topic.
func (e *ResponseError) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.Timestamp)
}

// IsToken returns true if the error is associated with the device
// token.
func (e *ResponseError) IsToken() bool { return e.Reason.IsToken() }

// Class returns the retry classification of the server reason.
func (e *ResponseError) Class() Class { return e.Reason.Class() }

// TransportError describes a connection-level failure: the handshake
// failed or the connection broke while a request was in flight. The
// affected connection is evicted and the request may be retried with
// backoff on a fresh one.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "apns: transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError describes a response that does not follow the APNs
// wire contract, such as a failure status with an undecodable body.
// It is treated as a retryable transport fault.
type ProtocolError struct {
	Status int
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("apns: protocol: status %d: %s", e.Status, e.Detail)
}

// ClassifyError maps any error produced by the client to a retry
// class: server-reported reasons use their documented classification,
// transport and protocol faults are retryable, credential and
// validation failures are configuration errors.
func ClassifyError(err error) Class {
	switch err := err.(type) {
	case *ResponseError:
		return err.Class()
	case *CredentialError, *ValidationError:
		return ConfigError
	default:
		return Retryable
	}
}
