package upload

import (
	"errors"
	"strings"
	"sync"
)

// LocalPathMarker identifies an upload URL served by the backend's own
// local-storage handler rather than external object storage.
const LocalPathMarker = "/storage/local/"

// TransportKind selects one of the three dispatch variants. It is derived
// solely from the ticket's declared shape — the client never guesses.
type TransportKind string

const (
	// TransportLocalPut sends the raw artifact bytes with a PUT to the
	// backend's local-storage handler.
	TransportLocalPut TransportKind = "local-put"

	// TransportMultipartPost sends a presigned object-storage form upload:
	// all ticket fields first, then the binary payload.
	TransportMultipartPost TransportKind = "multipart-post"

	// TransportDirectPut sends the raw bytes with a PUT and a content-type
	// header to a presigned destination.
	TransportDirectPut TransportKind = "direct-put"
)

// ErrTicketUsed is returned when a ticket is dispatched a second time.
// A ticket authorizes exactly one artifact.
var ErrTicketUsed = errors.New("upload: ticket already used")

// Ticket is a short-lived, single-use upload authorization returned by the
// presign step.
type Ticket struct {
	// AssetID is the server-assigned identity of the artifact-to-be.
	AssetID string

	// UploadURL is the dispatch destination.
	UploadURL string

	// Method is the declared upload method, "PUT" or "POST".
	Method string

	// Fields carries the presigned form fields for multipart POST uploads.
	Fields map[string]string

	mu   sync.Mutex
	used bool
}

// Kind returns the transport variant this ticket declares.
func (t *Ticket) Kind() TransportKind {
	if strings.Contains(t.UploadURL, LocalPathMarker) {
		return TransportLocalPut
	}
	if strings.EqualFold(t.Method, "POST") && len(t.Fields) > 0 {
		return TransportMultipartPost
	}
	return TransportDirectPut
}

// consume marks the ticket used. The second call fails with [ErrTicketUsed].
func (t *Ticket) consume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used {
		return ErrTicketUsed
	}
	t.used = true
	return nil
}
