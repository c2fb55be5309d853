package appErrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewBroadcastNotFound("b1"), http.StatusNotFound},
		{fmt.Errorf("load: %w", NewBroadcastNotFound("b1")), http.StatusNotFound},
		{fmt.Errorf("mark read: %w", ErrDeliveryNotFound), http.StatusNotFound},
		{NewValidationError("subject: cannot be blank"), http.StatusBadRequest},
		{fmt.Errorf("claim: %w", ErrInvalidStatus), http.StatusConflict},
		{ErrNoRecipients, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestBroadcastNotFoundMessage(t *testing.T) {
	err := NewBroadcastNotFound("b42")
	assert.EqualError(t, err, "broadcast with ID b42 not found")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(ErrInvalidStatus))
}
