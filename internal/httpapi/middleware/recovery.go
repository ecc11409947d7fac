package middleware

import (
	"log"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/common"
	"github.com/gin-gonic/gin"
)

// Recovery converts panics into the JSON error envelope instead of gin's
// default plain-text response. Panics after streaming began only abort.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered: %v", r)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				common.Fail(c, http.StatusInternalServerError, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
