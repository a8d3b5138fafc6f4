// Package upload implements the three-step upload handshake: request a
// presigned ticket, dispatch the artifact via the transport variant the
// ticket declares, and confirm completion with the backend.
//
// Only after the completion call succeeds is an artifact considered
// durably stored.
package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/mverbeek/levensboek/internal/httpx"
	"github.com/mverbeek/levensboek/internal/session"
)

// TicketRequest identifies the artifact a presign ticket is requested for.
type TicketRequest struct {
	JourneyID string
	ChapterID string
	Modality  session.Modality
	Filename  string
	SizeBytes int64
	Checksum  string
}

// presignRequest is the wire shape of the presign body.
type presignRequest struct {
	JourneyID string `json:"journey_id"`
	ChapterID string `json:"chapter_id"`
	Modality  string `json:"modality"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// presignResponse is the wire shape of the presign response.
type presignResponse struct {
	UploadURL    string            `json:"upload_url"`
	AssetID      string            `json:"asset_id"`
	UploadMethod string            `json:"upload_method"`
	Fields       map[string]string `json:"fields"`
}

// Client performs the upload handshake against the backend.
// It is safe for concurrent use.
type Client struct {
	api *httpx.Client
}

// NewClient creates an upload client on the shared transport.
func NewClient(api *httpx.Client) *Client {
	return &Client{api: api}
}

// Checksum returns the hex-encoded SHA-256 of the artifact bytes, as sent
// in the presign request.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RequestTicket performs the presign step. Pure request/response; no side
// effects beyond the network call.
func (c *Client) RequestTicket(ctx context.Context, req TicketRequest) (*Ticket, error) {
	var resp presignResponse
	err := c.api.DoJSON(ctx, http.MethodPost, "/media/presign", presignRequest{
		JourneyID: req.JourneyID,
		ChapterID: req.ChapterID,
		Modality:  string(req.Modality),
		Filename:  req.Filename,
		SizeBytes: req.SizeBytes,
		Checksum:  req.Checksum,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("upload: request ticket: %w", err)
	}
	return &Ticket{
		AssetID:   resp.AssetID,
		UploadURL: resp.UploadURL,
		Method:    resp.UploadMethod,
		Fields:    resp.Fields,
	}, nil
}

// Dispatch moves the artifact bytes to the ticket's destination using the
// variant the ticket declares. A ticket can be dispatched exactly once.
func (c *Client) Dispatch(ctx context.Context, t *Ticket, artifact *session.Artifact) error {
	if err := t.consume(); err != nil {
		return err
	}

	kind := t.Kind()
	slog.Debug("dispatching artifact",
		"asset_id", t.AssetID,
		"transport", kind,
		"size_bytes", artifact.Size())

	var err error
	switch kind {
	case TransportLocalPut:
		err = c.putRaw(ctx, t, artifact, true)
	case TransportMultipartPost:
		err = c.postMultipart(ctx, t, artifact)
	case TransportDirectPut:
		err = c.putRaw(ctx, t, artifact, false)
	}
	if err != nil {
		return fmt.Errorf("upload: dispatch (%s): %w", kind, err)
	}
	return nil
}

// Confirm notifies the backend that the bytes have landed. Only after this
// succeeds is the artifact durably stored.
func (c *Client) Confirm(ctx context.Context, assetID string) error {
	path := fmt.Sprintf("/media/%s/complete", assetID)
	if err := c.api.DoJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("upload: confirm completion: %w", err)
	}
	return nil
}

// putRaw sends the artifact's raw bytes with a PUT and its content type as
// header. The local-storage variant additionally carries the bearer token;
// presigned destinations are authorized by the URL itself.
func (c *Client) putRaw(ctx context.Context, t *Ticket, artifact *session.Artifact, local bool) error {
	return c.api.DoRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.UploadURL, bytes.NewReader(artifact.Data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", artifact.ContentType)
		req.ContentLength = artifact.Size()
		if local {
			c.api.Authorize(req)
		}
		return req, nil
	}, nil)
}

// postMultipart sends a presigned form upload: every ticket field first,
// then the binary payload as the "file" part.
func (c *Client) postMultipart(ctx context.Context, t *Ticket, artifact *session.Artifact) error {
	return c.api.DoRetry(ctx, func() (*http.Request, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		for k, v := range t.Fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
		part, err := w.CreateFormFile("file", t.AssetID)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, bytes.NewReader(artifact.Data)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.UploadURL, bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, nil)
}
