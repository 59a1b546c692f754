package transport

import (
	"net/http"

	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SuccessResponse представляет успешный ответ
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Data: data})
}

// respondError maps the error kind to an HTTP status. Internal errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	kind := entity.KindOf(err)
	status := statusFor(kind)

	body := ErrorBody{Code: entity.CodeOf(err), Message: err.Error()}
	if kind == entity.KindInternal {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		body.Message = "internal server error"
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Error: body})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, entity.Validation("%s", message))
}

func statusFor(kind entity.ErrorKind) int {
	switch kind {
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindInvalidState:
		return http.StatusConflict
	case entity.KindContentViolation:
		return http.StatusUnprocessableEntity
	case entity.KindAccountRestricted:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
