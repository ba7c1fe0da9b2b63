package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
	"postflow/pkg/logger"

	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postflow: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type PostflowClient struct {
	addr       string
	token      string
	devUser    string
	httpClient *http.Client
}

type Option func(*PostflowClient)

// WithDevUser authenticates with the X-Dev-User header instead of a bearer
// token. Only servers running with auth.dev_mode accept it.
func WithDevUser(userID string) Option {
	return func(c *PostflowClient) { c.devUser = userID }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *PostflowClient) { c.httpClient = hc }
}

func NewPostflowClient(addr, token string, opts ...Option) *PostflowClient {
	c := &PostflowClient{
		addr:       strings.TrimRight(addr, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ScheduleRequest struct {
	Content        string         `json:"content"`
	Platforms      []string       `json:"platforms"`
	Media          []v1.MediaRef  `json:"media,omitempty"`
	PublishAt      string         `json:"publishAt"`
	Timezone       string         `json:"timezone,omitempty"`
	OrganizationID string         `json:"organizationId"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type Scheduled struct {
	JobID       string    `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"`
}

func (c *PostflowClient) CreateJob(ctx context.Context, r ScheduleRequest) (*Scheduled, error) {
	var out Scheduled
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PostflowClient) CancelJob(ctx context.Context, jobID, organizationID string) error {
	body := map[string]string{"jobId": jobID, "organizationId": organizationID}
	return c.do(ctx, http.MethodPost, "/v1/jobs/cancel", body, nil)
}

func (c *PostflowClient) GetJob(ctx context.Context, jobID, organizationID string) (*v1.Job, error) {
	path := fmt.Sprintf("/v1/jobs/%s?organizationId=%s", url.PathEscape(jobID), url.QueryEscape(organizationID))
	var out struct {
		Job v1.Job `json:"job"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

func (c *PostflowClient) SetSecret(ctx context.Context, organizationID, platform, value string) error {
	path := fmt.Sprintf("/v1/organizations/%s/secrets/%s", url.PathEscape(organizationID), url.PathEscape(platform))
	return c.do(ctx, http.MethodPut, path, map[string]string{"value": value}, nil)
}

// WaitFor polls the job until it reaches a terminal status or ctx ends.
func (c *PostflowClient) WaitFor(ctx context.Context, jobID, organizationID string, every time.Duration) (*v1.Job, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, jobID, organizationID)
		if err != nil {
			return nil, err
		}
		if constraints.IsTerminal(job.Status) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *PostflowClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.devUser != "" {
		req.Header.Set("X-Dev-User", c.devUser)
	} else if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("postflow request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
