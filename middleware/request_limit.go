package middleware

import (
	"net/http"

	"posts-rag-service/utils"

	"github.com/gin-gonic/gin"
)

// RequestSizeLimit rejects bodies declared larger than maxSize and caps the reader
// for bodies that do not declare a length.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size": maxSize,
					"received": c.Request.ContentLength,
				})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
