package handler

import (
	"docuvault/internal/dto"
	"docuvault/internal/proxy"
	"docuvault/utils"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ProxyHandler serves the public object API.
type ProxyHandler struct {
	proxy          *proxy.Proxy
	maxUploadBytes int64
}

func NewProxyHandler(p *proxy.Proxy, maxUploadBytes int64) *ProxyHandler {
	return &ProxyHandler{proxy: p, maxUploadBytes: maxUploadBytes}
}

// Upload stages a multipart file upload.
func (h *ProxyHandler) Upload(c *gin.Context) {
	var req dto.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	if h.maxUploadBytes > 0 && req.File.Size > h.maxUploadBytes {
		utils.Fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes), "")
		return
	}

	src, err := req.File.Open()
	if err != nil {
		utils.Fail(c, http.StatusBadRequest, "open file: "+err.Error(), "")
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		utils.Fail(c, http.StatusBadRequest, "read file: "+err.Error(), "")
		return
	}

	contentType := strings.TrimSpace(req.File.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	objectID, err := h.proxy.StageUpload(c.Request.Context(), &dto.StageRequest{
		Name:        req.File.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		OwnerUserID: req.OwnerUserID,
		Data:        data,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, dto.StageResponse{ObjectID: objectID})
}

func (h *ProxyHandler) Commit(c *gin.Context) {
	var req dto.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	objectID := c.Param("id")
	if err := h.proxy.Commit(c.Request.Context(), objectID, req.DocumentID); err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, gin.H{"object_id": objectID, "fixed": true})
}

// Fetch streams the raw bytes back as an attachment.
func (h *ProxyHandler) Fetch(c *gin.Context) {
	obj, err := h.proxy.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": utils.SanitizeHeaderFilename(obj.Name),
	})
	if disposition == "" {
		disposition = `attachment; filename="download"`
	}
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, contentType, obj.Data)
}

// Discard is best effort and always answers 200.
func (h *ProxyHandler) Discard(c *gin.Context) {
	var req dto.DiscardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	h.proxy.Discard(c.Request.Context(), req.ObjectIDs)
	utils.Success(c, http.StatusOK, gin.H{"msg": "ok"})
}

func (h *ProxyHandler) Topology(c *gin.Context) {
	topo := h.proxy.Topology()
	resp := dto.TopologyResponse{Version: topo.Version()}
	for _, ep := range topo.Endpoints() {
		resp.Shards = append(resp.Shards, dto.ShardInfo{Index: ep.Index, Name: ep.Name, Addr: ep.Addr})
	}
	utils.Success(c, http.StatusOK, resp)
}
