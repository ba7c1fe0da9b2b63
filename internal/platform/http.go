package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	v1 "postflow/pkg/api/v1"
)

const maxErrorBody = 512

// Classify maps an HTTP status to a failure classification: throttling and
// server errors are worth retrying later, any other rejection is not.
func Classify(status int) v1.Classification {
	if status == http.StatusTooManyRequests || status >= 500 {
		return v1.Transient
	}
	return v1.Permanent
}

func statusCode(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeUnauthorized
	case status >= 500:
		return CodeUnavailable
	default:
		return CodeRejected
	}
}

// statusFailure builds a failure from a non-2xx response.
func statusFailure(platform string, resp *http.Response) Result {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("%s returned %d", platform, resp.StatusCode)
	if b := strings.TrimSpace(string(body)); b != "" {
		msg += ": " + b
	}
	return Failure(statusCode(resp.StatusCode), msg, Classify(resp.StatusCode))
}

// transportFailure classifies an error from http.Client.Do. Every transport
// error is transient.
func transportFailure(platform string, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure(CodeTimeout, platform+" request timed out", v1.Transient)
	}
	return Failure(CodeNetwork, fmt.Sprintf("%s request failed: %v", platform, err), v1.Transient)
}

func newJSONRequest(ctx context.Context, method, url, token string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// doJSON sends req and decodes a 2xx body into out. It returns the response
// headers on success, or a classified failure.
func doJSON(client *http.Client, platform string, req *http.Request, out any) (http.Header, *Result) {
	resp, err := client.Do(req)
	if err != nil {
		f := transportFailure(platform, err)
		return nil, &f
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f := statusFailure(platform, resp)
		return nil, &f
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			f := Failure(CodeBadResponse, fmt.Sprintf("%s response is not valid json: %v", platform, err), v1.Permanent)
			return nil, &f
		}
	}
	return resp.Header, nil
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
