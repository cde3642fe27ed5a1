package router

import (
	"bytes"
	"context"
	"docuvault/internal/cache"
	"docuvault/internal/client"
	"docuvault/internal/dto"
	"docuvault/internal/handler"
	"docuvault/internal/logging"
	"docuvault/internal/pool"
	"docuvault/internal/proxy"
	"docuvault/internal/repo"
	"docuvault/internal/service"
	"docuvault/internal/shard"
	"docuvault/internal/storage"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

type stack struct {
	nodes    []*service.Node
	nodeURLs []string
	proxyURL string
}

func newStack(t *testing.T, shards int, maxUpload int64) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logging.Discard()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	objects := cache.NewObjectCache(cache.NewRedisCache(rdb))

	s := &stack{}
	endpoints := make([]shard.Endpoint, shards)
	for i := 0; i < shards; i++ {
		disk, err := storage.NewDiskStore(t.TempDir())
		require.NoError(t, err)
		node := service.NewNode(service.NodeConfig{ShardIndex: i}, repo.NewMemoryObjectRepository(), disk, objects,
			pool.New(pool.Config{Workers: 2, Queue: 8}, log), log)
		t.Cleanup(func() { _ = node.Shutdown(context.Background()) })

		srv := httptest.NewServer(InitNodeRouter(handler.NewNodeHandler(node), testSecret, log))
		t.Cleanup(srv.Close)
		s.nodes = append(s.nodes, node)
		s.nodeURLs = append(s.nodeURLs, srv.URL)
		endpoints[i] = shard.Endpoint{Index: i, Name: fmt.Sprintf("shard-%d", i), Addr: srv.URL}
	}

	topo, err := shard.NewTopology(1, endpoints)
	require.NoError(t, err)
	tokens := client.ServiceTokens(testSecret, "proxy")
	p := proxy.New(shard.NewHolder(topo), func(ep shard.Endpoint) proxy.NodeClient {
		return client.NewHTTPNodeClient(ep.Addr, 5*time.Second, tokens)
	}, proxy.Config{CallTimeout: 5 * time.Second, DiscardTimeout: 2 * time.Second}, log)

	srv := httptest.NewServer(InitProxyRouter(handler.NewProxyHandler(p, maxUpload), log))
	t.Cleanup(srv.Close)
	s.proxyURL = srv.URL
	return s
}

func (s *stack) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, n := range s.nodes {
		require.NoError(t, n.WaitIdle(ctx))
	}
}

func upload(t *testing.T, baseURL string, owner string, name, contentType string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if owner != "" {
		require.NoError(t, mw.WriteField("owner_user_id", owner))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(baseURL+"/api/objects", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestObjectLifecycleThroughProxy(t *testing.T) {
	s := newStack(t, 2, 1<<20)

	resp := upload(t, s.proxyURL, "42", "a.txt", "text/plain", []byte("0123456789"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	staged := decode[dto.StageResponse](t, resp)
	require.NotEmpty(t, staged.ObjectID)
	s.waitIdle(t)

	resp, err := http.Get(s.proxyURL + "/api/objects/" + staged.ObjectID)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("0123456789"), data)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "a.txt")

	resp = postJSON(t, s.proxyURL+"/api/objects/"+staged.ObjectID+"/commit", dto.CommitRequest{DocumentID: 7})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, s.proxyURL+"/api/objects/discard", dto.DiscardRequest{ObjectIDs: []string{staged.ObjectID}})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	s.waitIdle(t)

	resp, err = http.Get(s.proxyURL + "/api/objects/" + staged.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, "deleted", errBody.Reason)
}

func TestNotFoundCarriesReason(t *testing.T) {
	s := newStack(t, 2, 1<<20)

	resp, err := http.Get(s.proxyURL + "/api/objects/unknown-id")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "missing", decode[dto.ErrorResponse](t, resp).Reason)

	for i := 0; i < 2; i++ {
		resp = postJSON(t, s.proxyURL+"/api/objects/unknown-id/commit", dto.CommitRequest{DocumentID: 7})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "missing", decode[dto.ErrorResponse](t, resp).Reason)
	}
}

func TestUploadValidation(t *testing.T) {
	s := newStack(t, 1, 4)

	resp := upload(t, s.proxyURL, "", "a.txt", "text/plain", []byte("abc"))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, s.proxyURL, "42", "a.txt", "text/plain", []byte("0123456789"))
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = postJSON(t, s.proxyURL+"/api/objects/x/commit", map[string]any{})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTopologyRoute(t *testing.T) {
	s := newStack(t, 3, 1<<20)

	resp, err := http.Get(s.proxyURL + "/api/topology")
	require.NoError(t, err)
	topo := decode[dto.TopologyResponse](t, resp)
	assert.EqualValues(t, 1, topo.Version)
	require.Len(t, topo.Shards, 3)
	assert.Equal(t, s.nodeURLs[2], topo.Shards[2].Addr)
}

func TestNodeRequiresServiceToken(t *testing.T) {
	s := newStack(t, 1, 1<<20)

	resp, err := http.Get(s.nodeURLs[0] + "/internal/v1/objects/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(s.nodeURLs[0] + "/healthz")
	require.NoError(t, err)
	health := decode[dto.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Workers)
}

func TestProxyCORS(t *testing.T) {
	s := newStack(t, 1, 1<<20)

	req, err := http.NewRequest(http.MethodOptions, s.proxyURL+"/api/objects", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://app.local", resp.Header.Get("Access-Control-Allow-Origin"))
}
