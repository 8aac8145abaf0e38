package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("donation %d not found", 1), KindNotFound},
		{"bad request", BadRequest("amount must be positive"), KindBadRequest},
		{"unauthorized", Unauthorized("invalid token"), KindUnauthorized},
		{"forbidden", Forbidden("not the owner"), KindForbidden},
		{"conflict", Conflict("duplicate key"), KindConflict},
		{"wrapped", fmt.Errorf("failed to load: %w", NotFound("missing")), KindNotFound},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "missing", Message(fmt.Errorf("ctx: %w", NotFound("missing"))))
	assert.Equal(t, "internal server error", Message(errors.New("db down")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindBadRequest, cause, "cannot charge")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, Is(err, KindBadRequest))
	assert.Equal(t, "cannot charge: connection refused", err.Error())
	assert.False(t, Is(nil, KindBadRequest))
}
