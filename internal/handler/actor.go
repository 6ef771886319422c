package handler

import "github.com/gin-gonic/gin"

// Authentication happens at the gateway, which forwards the caller in
// these headers.
const (
	userHeader     = "X-User-ID"
	operatorHeader = "X-Operator-ID"
)

func actorID(c *gin.Context) string {
	return c.GetHeader(userHeader)
}

func operatorID(c *gin.Context) string {
	return c.GetHeader(operatorHeader)
}
