package handler

import (
	"context"
	"docuvault/internal/common"
	"docuvault/utils"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var objErr *common.ObjectError
	switch {
	case errors.As(err, &objErr):
		utils.Fail(c, http.StatusNotFound, err.Error(), string(objErr.Reason))
	case errors.Is(err, common.ErrObjectNotFound):
		utils.Fail(c, http.StatusNotFound, err.Error(), string(common.ReasonMissing))
	case errors.Is(err, common.ErrInvalidArgument):
		utils.Fail(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, common.ErrShuttingDown):
		utils.Fail(c, http.StatusServiceUnavailable, err.Error(), "")
	case errors.Is(err, context.DeadlineExceeded):
		utils.Fail(c, http.StatusGatewayTimeout, err.Error(), "")
	case errors.Is(err, common.ErrTransport):
		utils.Fail(c, http.StatusBadGateway, err.Error(), "")
	default:
		_ = c.Error(err)
		utils.Fail(c, http.StatusInternalServerError, err.Error(), "")
	}
}
