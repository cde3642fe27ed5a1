package handler

import (
	"docuvault/internal/dto"
	"docuvault/internal/service"
	"docuvault/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NodeHandler serves a storage node's internal routes.
type NodeHandler struct {
	node *service.Node
}

func NewNodeHandler(node *service.Node) *NodeHandler {
	return &NodeHandler{node: node}
}

// Stage accepts an object; bytes are written in the background.
func (h *NodeHandler) Stage(c *gin.Context) {
	var req dto.StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	objectID, err := h.node.Stage(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, http.StatusAccepted, dto.StageResponse{ObjectID: objectID})
}

func (h *NodeHandler) Commit(c *gin.Context) {
	var req dto.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	objectID := c.Param("id")
	if err := h.node.Commit(c.Request.Context(), objectID, req.DocumentID); err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, gin.H{"object_id": objectID, "fixed": true})
}

func (h *NodeHandler) Fetch(c *gin.Context) {
	obj, err := h.node.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, obj)
}

// Discard always acknowledges.
func (h *NodeHandler) Discard(c *gin.Context) {
	var req dto.DiscardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	h.node.Discard(req.ObjectIDs)
	utils.Success(c, http.StatusAccepted, gin.H{"msg": "ok"})
}

func (h *NodeHandler) Health(c *gin.Context) {
	stats := h.node.Stats()
	status := "ok"
	code := http.StatusOK
	if stats.Closed {
		status = "draining"
		code = http.StatusServiceUnavailable
	}
	utils.Success(c, code, dto.HealthResponse{
		Status:     status,
		Shard:      h.node.ShardIndex(),
		Workers:    stats.Workers,
		QueueDepth: stats.QueueDepth,
		Inflight:   stats.Inflight,
	})
}
