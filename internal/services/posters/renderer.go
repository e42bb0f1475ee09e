package posters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fastprodman/tokenledger/internal/repos/posters"
)

// Renderer turns one job's profile and template data into a hosted image URL.
type Renderer interface {
	Render(ctx context.Context, in posters.RenderInput) (string, error)
}

var ErrRenderRejected = errors.New("renderer rejected job")

// HTTPRenderer calls an external rendering service:
//
//	POST {url}  {"jobId", "profileId", "profileName", "template", "templateSpec", "customization"}
//	200         {"url": "https://..."}
type HTTPRenderer struct {
	url    string
	client *http.Client
}

func NewHTTPRenderer(url string, client *http.Client) *HTTPRenderer {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	return &HTTPRenderer{url: url, client: client}
}

type renderRequest struct {
	JobID         string          `json:"jobId"`
	ProfileID     string          `json:"profileId"`
	ProfileName   string          `json:"profileName"`
	Template      string          `json:"template"`
	TemplateSpec  json.RawMessage `json:"templateSpec,omitempty"`
	Customization json.RawMessage `json:"customization,omitempty"`
}

type renderResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (r *HTTPRenderer) Render(ctx context.Context, in posters.RenderInput) (string, error) {
	body, err := json.Marshal(renderRequest{
		JobID:         in.JobID.String(),
		ProfileID:     in.ProfileID.String(),
		ProfileName:   in.ProfileName,
		Template:      in.TemplateName,
		TemplateSpec:  nonEmpty(in.TemplateSpec),
		Customization: nonEmpty(in.CustomData),
	})
	if err != nil {
		return "", fmt.Errorf("marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build render request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call renderer: %w", err)
	}
	defer resp.Body.Close()

	var out renderResponse

	err = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)
	if err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("decode render response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = resp.Status
		}

		return "", fmt.Errorf("%w: %s", ErrRenderRejected, msg)
	}

	if out.URL == "" {
		return "", fmt.Errorf("%w: empty url", ErrRenderRejected)
	}

	return out.URL, nil
}

func nonEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	return raw
}
