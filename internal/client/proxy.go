package client

import (
	"context"
	"docuvault/internal/dto"
	"net/http"
	"time"
)

// ProxyClient is used by the reclamation worker to discard through the
// routing proxy.
type ProxyClient struct {
	req requester
}

func NewProxyClient(addr string, timeout time.Duration) *ProxyClient {
	return &ProxyClient{req: requester{base: addr, http: newHTTPClient(timeout)}}
}

func (c *ProxyClient) Discard(ctx context.Context, objectIDs []string) error {
	status, raw, err := c.req.do(ctx, http.MethodPost, "/api/objects/discard", dto.DiscardRequest{ObjectIDs: objectIDs}, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusMultipleChoices {
		return statusError("", status, raw)
	}
	return nil
}
