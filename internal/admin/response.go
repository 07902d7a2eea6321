package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every admin endpoint.
type APIResponse struct {
	Code    int    `json:"code,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func failure(c *gin.Context, code int, message string, err error) {
	resp := APIResponse{Code: code, Status: "failed", Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.AbortWithStatusJSON(code, resp)
}
