package client

import (
	"context"
	"docuvault/internal/dto"
	"net/http"
	"net/url"
	"time"
)

const nodePrefix = "/internal/v1"

// HTTPNodeClient talks to one storage node's internal routes.
type HTTPNodeClient struct {
	req requester
}

func NewHTTPNodeClient(addr string, timeout time.Duration, tokens TokenSource) *HTTPNodeClient {
	return &HTTPNodeClient{req: requester{base: addr, http: newHTTPClient(timeout), tokens: tokens}}
}

func objectPath(objectID string) string {
	return nodePrefix + "/objects/" + url.PathEscape(objectID)
}

func (c *HTTPNodeClient) Stage(ctx context.Context, req *dto.StageRequest) (string, error) {
	var resp dto.StageResponse
	status, raw, err := c.req.do(ctx, http.MethodPost, nodePrefix+"/objects", req, &resp)
	if err != nil {
		return "", err
	}
	if status >= http.StatusMultipleChoices {
		return "", statusError(req.ObjectID, status, raw)
	}
	return resp.ObjectID, nil
}

func (c *HTTPNodeClient) Commit(ctx context.Context, objectID string, documentID uint64) error {
	status, raw, err := c.req.do(ctx, http.MethodPost, objectPath(objectID)+"/commit", dto.CommitRequest{DocumentID: documentID}, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusMultipleChoices {
		return statusError(objectID, status, raw)
	}
	return nil
}

func (c *HTTPNodeClient) Fetch(ctx context.Context, objectID string) (*dto.Object, error) {
	var obj dto.Object
	status, raw, err := c.req.do(ctx, http.MethodGet, objectPath(objectID), nil, &obj)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusMultipleChoices {
		return nil, statusError(objectID, status, raw)
	}
	return &obj, nil
}

func (c *HTTPNodeClient) Discard(ctx context.Context, objectIDs []string) error {
	status, raw, err := c.req.do(ctx, http.MethodPost, nodePrefix+"/objects/discard", dto.DiscardRequest{ObjectIDs: objectIDs}, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusMultipleChoices {
		return statusError("", status, raw)
	}
	return nil
}
