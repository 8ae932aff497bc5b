package util

import (
	"errors"
	"net/http"

	"survey_marking_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// HandleError 将领域错误映射为HTTP状态码
func HandleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		NotFound(c)
	case errors.Is(err, ErrRestricted):
		Forbidden(c, err.Error())
	case errors.Is(err, ErrSessionExists),
		errors.Is(err, ErrSessionNotMutable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicateSectionOrder):
		Conflict(c, err.Error())
	case errors.Is(err, ErrIncomplete),
		errors.Is(err, ErrQuestionNotVisible),
		errors.Is(err, ErrInvalidOrder),
		errors.Is(err, ErrForwardReference),
		errors.Is(err, ErrTriggerNotFound),
		errors.Is(err, ErrSelfReference),
		errors.Is(err, ErrInvalidRule),
		errors.Is(err, ErrInvalidQuestionType):
		Error(c, http.StatusUnprocessableEntity, err.Error())
	default:
		LogInternalError(c, err)
	}
}
