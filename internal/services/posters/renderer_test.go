package posters

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/tokenledger/internal/repos/posters"
)

func TestHTTPRenderer(t *testing.T) {
	t.Parallel()

	in := posters.RenderInput{
		JobID:        uuid.New(),
		ProfileID:    uuid.New(),
		ProfileName:  "Jordan Reyes",
		TemplateName: "Game Day",
		CustomData:   json.RawMessage(`{"background":"navy"}`),
	}

	tests := []struct {
		name    string
		status  int
		body    string
		wantURL string
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"url":"https://cdn.example.com/p.png"}`, wantURL: "https://cdn.example.com/p.png"},
		{name: "rejected", status: http.StatusUnprocessableEntity, body: `{"error":"unsupported template"}`, wantErr: true},
		{name: "empty_url", status: http.StatusOK, body: `{}`, wantErr: true},
		{name: "garbage", status: http.StatusBadGateway, body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)

				var got renderRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, in.JobID.String(), got.JobID)
				assert.Equal(t, "Game Day", got.Template)
				assert.JSONEq(t, `{"background":"navy"}`, string(got.Customization))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			url, err := NewHTTPRenderer(srv.URL, srv.Client()).Render(t.Context(), in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}
