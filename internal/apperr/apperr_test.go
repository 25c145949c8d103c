package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
	assert.False(t, meta.Expose)
}

func TestAsFindsWrappedError(t *testing.T) {
	base := New(CodeNotFound, "order not found")
	wrapped := fmt.Errorf("confirm payment: %w", base)

	typed := As(wrapped)
	if assert.NotNil(t, typed) {
		assert.Equal(t, CodeNotFound, typed.Code())
		assert.Equal(t, "order not found", typed.Message())
	}
	assert.True(t, Is(wrapped, CodeNotFound))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeDependency, cause, "payment gateway unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, http.StatusBadGateway, MetadataFor(err.Code()).HTTPStatus)
}

func TestWithDetails(t *testing.T) {
	err := New(CodeNotFound, "products unavailable").WithDetails(map[string]any{"missing_ids": []int64{4, 9}})
	assert.Equal(t, map[string]any{"missing_ids": []int64{4, 9}}, err.Details())
}
