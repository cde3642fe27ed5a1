package utils

import "github.com/gin-gonic/gin"

// Success writes a JSON response with the given status.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Fail aborts with the shared error body. reason is omitted when empty.
func Fail(c *gin.Context, status int, msg string, reason string) {
	body := gin.H{"error": msg}
	if reason != "" {
		body["reason"] = reason
	}
	c.AbortWithStatusJSON(status, body)
}
