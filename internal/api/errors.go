package api

import (
	"errors"
	"net/http"

	"storefront-service/internal/apperr"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// respondError renders err with the status of its code. Untyped errors are
// logged in full and reach the caller only as a generic message.
func respondError(c *gin.Context, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())

	body := errorBody{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.Expose {
		if m := typed.Message(); m != "" {
			body.Message = m
		}
		body.Details = typed.Details()
	}

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("error_code", string(typed.Code())),
		zap.Error(err),
	}
	if meta.HTTPStatus >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed", fields...)
	} else {
		util.GetLogger().Debug("Request rejected", fields...)
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, gin.H{
		"status": "error",
		"error":  body,
	})
}

func respondOK(c *gin.Context, status int, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["status"] = "success"
	c.JSON(status, payload)
}

func badRequest(message string) error {
	return apperr.New(apperr.CodeValidation, message)
}
