package apns

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Response is the outcome of a successfully delivered request.
type Response struct {
	// ID is the canonical UUID identifying the notification: the
	// client-supplied apns-id, or a server-generated one when the
	// request carried none.
	ID string
	// Sent is the local time at which the response was received.
	Sent time.Time
}

// parseResponse decodes the raw status, headers and body of an APNs
// exchange. Status 200 with an apns-id header is success; every other
// status decodes the JSON error body into a *ResponseError. A body
// that cannot be decoded is a *ProtocolError, which retries like a
// transport fault. An unrecognized reason string is carried through
// as-is rather than failing the parse.
func parseResponse(status int, header http.Header, body io.Reader) (*Response, error) {
	id := header.Get("apns-id")
	if status == http.StatusOK {
		return &Response{ID: id, Sent: time.Now()}, nil
	}
	response := &ResponseError{
		Status:     status,
		ID:         id,
		RetryAfter: parseRetryAfter(header.Get("Retry-After")),
	}
	if err := json.NewDecoder(body).Decode(response); err != nil {
		return nil, &ProtocolError{Status: status, Detail: err.Error()}
	}
	if response.Reason == "" {
		return nil, &ProtocolError{Status: status, Detail: "error body without reason"}
	}
	return nil, response
}

// parseRetryAfter reads the Retry-After header, which the server sends
// either as a delay in seconds or as an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
