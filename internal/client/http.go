package client

import (
	"bytes"
	"context"
	"docuvault/internal/common"
	"docuvault/internal/dto"
	"docuvault/utils"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// TokenSource returns the bearer token attached to each request. An empty
// token means no Authorization header.
type TokenSource func() (string, error)

// ServiceTokens signs a fresh service token per request, or returns nil
// when secret is empty.
func ServiceTokens(secret, service string) TokenSource {
	if secret == "" {
		return nil
	}
	return func() (string, error) {
		return utils.GenerateServiceToken(secret, service)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

type requester struct {
	base   string
	http   *http.Client
	tokens TokenSource
}

func (r *requester) do(ctx context.Context, method, path string, body any, out any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.base, "/")+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if r.tokens != nil {
		token, err := r.tokens()
		if err != nil {
			return 0, nil, fmt.Errorf("service token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, raw, nil
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: decode response: %w", common.ErrTransport, err)
	}
	return resp.StatusCode, nil, nil
}

// statusError turns a non-2xx reply into the matching domain error.
func statusError(objectID string, status int, raw []byte) error {
	var body dto.ErrorResponse
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusNotFound:
		reason := common.NotFoundReason(body.Reason)
		if reason == "" {
			reason = common.ReasonMissing
		}
		return common.NotFound(objectID, reason)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", common.ErrInvalidArgument, msg)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w: %s", common.ErrTransport, common.ErrShuttingDown, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", common.ErrTransport, status, msg)
	}
}
