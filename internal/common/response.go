package common

import "github.com/gin-gonic/gin"

// Fail writes the error envelope used across the HTTP surface.
func Fail(c *gin.Context, httpStatus int, msg string, details ...string) {
	body := gin.H{"error": msg}
	if len(details) > 0 && details[0] != "" {
		body["details"] = details[0]
	}
	c.JSON(httpStatus, body)
}
