package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
)

type apiClient struct {
	baseURL string
	http    *http.Client
	auth    config.Config
}

func newAPIClient(baseURL string, auth config.Config) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		auth:    auth,
	}
}

// do sends the request as actor, using dev headers or a signed token
// depending on AUTH_MODE, and decodes a 2xx body into out.
func (c *apiClient) do(ctx context.Context, actor appointment.Actor, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.auth.AuthMode == config.AuthModeJWT {
		token, err := api.IssueToken(actor, []byte(c.auth.JWTSigningKey), c.auth.JWTIssuer)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-User-ID", actor.UserID.String())
		req.Header.Set("X-User-Role", string(actor.Role))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
