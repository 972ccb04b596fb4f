// Package host implements app.Host as an HTTP callback client. Launch intents
// are posted to the native shell, which answers later through the host
// routes of the HTTP API.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/haukened/snap/internal/app"
	"github.com/haukened/snap/internal/domain"
)

// Intent names understood by the shell.
const (
	IntentRequestPermissions = "request_permissions"
	IntentPromptSource       = "prompt_source"
	IntentCapture            = "capture"
	IntentPick               = "pick"
)

// ErrHostStatus wraps a non-2xx answer from the shell.
var ErrHostStatus = errors.New("host returned error status")

// Intent is the JSON body posted to {base}/intents.
type Intent struct {
	Intent      string   `json:"intent"`
	CallID      string   `json:"call_id"`
	Permissions []string `json:"permissions,omitempty"`
	Target      *Target  `json:"target,omitempty"`
	Accept      string   `json:"accept,omitempty"`
}

// Target tells the camera where to put the captured bytes.
type Target struct {
	FileID    string `json:"file_id"`
	URI       string `json:"uri"`
	UploadURL string `json:"upload_url"`
}

type permissionsQuery struct {
	Permissions []string `json:"permissions"`
}

type permissionsAnswer struct {
	States map[string]string `json:"states"`
}

// Client posts intents to the shell at Base.
type Client struct {
	base       string
	uploadBase string
	http       *http.Client
	logger     *slog.Logger
}

var _ app.Host = (*Client)(nil)

// New returns a Client for the shell at base. uploadBase is the public prefix
// of this service the shell uses for PUT /api/host/captures/{id}; it may be
// empty when the shell resolves relative URLs itself.
func New(base, uploadBase string, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		uploadBase: strings.TrimRight(uploadBase, "/"),
		http:       hc,
		logger:     logger.With("domain", "host"),
	}
}

// PermissionStates asks the shell for the current state of each alias.
func (c *Client) PermissionStates(ctx context.Context, aliases []domain.PermissionAlias) (map[domain.PermissionAlias]domain.PermissionState, error) {
	var ans permissionsAnswer
	if err := c.postJSON(ctx, "/permissions", permissionsQuery{Permissions: aliasStrings(aliases)}, &ans); err != nil {
		return nil, err
	}
	out := make(map[domain.PermissionAlias]domain.PermissionState, len(aliases))
	for _, a := range aliases {
		raw, ok := ans.States[string(a)]
		if !ok {
			out[a] = domain.PermissionPrompt
			continue
		}
		st, err := domain.ParsePermissionState(raw)
		if err != nil {
			return nil, fmt.Errorf("host permission answer: %w", err)
		}
		out[a] = st
	}
	return out, nil
}

// RequestPermissions asks the shell to show the permission dialog.
func (c *Client) RequestPermissions(ctx context.Context, callID domain.ID, aliases []domain.PermissionAlias) error {
	return c.post(ctx, Intent{Intent: IntentRequestPermissions, CallID: callID.String(), Permissions: aliasStrings(aliases)})
}

// PromptSource asks the shell to let the user choose camera or library.
func (c *Client) PromptSource(ctx context.Context, callID domain.ID) error {
	return c.post(ctx, Intent{Intent: IntentPromptSource, CallID: callID.String()})
}

// LaunchCapture starts the camera writing into target.
func (c *Client) LaunchCapture(ctx context.Context, callID domain.ID, target domain.FileRef) error {
	return c.post(ctx, Intent{
		Intent: IntentCapture,
		CallID: callID.String(),
		Target: &Target{
			FileID:    target.ID.String(),
			URI:       target.URI(),
			UploadURL: c.uploadBase + "/api/host/captures/" + target.ID.String(),
		},
	})
}

// LaunchPicker starts the single image picker.
func (c *Client) LaunchPicker(ctx context.Context, callID domain.ID) error {
	return c.post(ctx, Intent{Intent: IntentPick, CallID: callID.String(), Accept: "image/*"})
}

func (c *Client) post(ctx context.Context, in Intent) error {
	c.logger.Debug("intent", "intent", in.Intent, "call", in.CallID)
	if err := c.postJSON(ctx, "/intents", in, nil); err != nil {
		return fmt.Errorf("%s intent: %w", in.Intent, err)
	}
	return nil
}

// postJSON posts payload to base+path and decodes the answer into out when
// out is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d: %s", ErrHostStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func aliasStrings(aliases []domain.PermissionAlias) []string {
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = string(a)
	}
	return out
}
