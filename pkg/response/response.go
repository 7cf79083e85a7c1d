// Package response writes the JSON envelope every API endpoint returns.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Body{Success: true, Data: data})
}

// Fail sends an error envelope with status. data may be nil.
func Fail(c *gin.Context, status int, err string, data interface{}) {
	c.JSON(status, Body{Success: false, Data: data, Error: err})
}

func OK(c *gin.Context, data interface{})       { success(c, http.StatusOK, data) }
func Created(c *gin.Context, data interface{})  { success(c, http.StatusCreated, data) }
func Accepted(c *gin.Context, data interface{}) { success(c, http.StatusAccepted, data) }

// NoContent sends 204 without a body.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func BadRequest(c *gin.Context, err string)         { Fail(c, http.StatusBadRequest, err, nil) }
func Unauthorized(c *gin.Context, err string)       { Fail(c, http.StatusUnauthorized, err, nil) }
func Forbidden(c *gin.Context, err string)          { Fail(c, http.StatusForbidden, err, nil) }
func NotFound(c *gin.Context, err string)           { Fail(c, http.StatusNotFound, err, nil) }
func Conflict(c *gin.Context, err string)           { Fail(c, http.StatusConflict, err, nil) }
func Internal(c *gin.Context, err string)           { Fail(c, http.StatusInternalServerError, err, nil) }
func ServiceUnavailable(c *gin.Context, err string) { Fail(c, http.StatusServiceUnavailable, err, nil) }

// PaymentRequired rejects a route that needs an active subscription.
func PaymentRequired(c *gin.Context, err string) { Fail(c, http.StatusPaymentRequired, err, nil) }

// Unprocessable rejects well-formed input the domain refuses; data explains why.
func Unprocessable(c *gin.Context, err string, data interface{}) {
	Fail(c, http.StatusUnprocessableEntity, err, data)
}
