package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/broadcast-engine/internal/model"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ann@example.com", true},
		{"  ann@example.com ", true},
		{"Ann <ann@example.com>", false},
		{"ann@", false},
		{"not an email", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validEmail(tt.in), tt.in)
	}
}

func TestChatAddressableFallsBackToEmail(t *testing.T) {
	a := NewChatAdapterWithAPI(nil, nil, 0, nil)
	assert.True(t, a.Addressable(model.Recipient{Email: "ann@example.com"}))
	assert.True(t, a.Addressable(model.Recipient{ChatID: "U0123ABCDE"}))
	assert.False(t, a.Addressable(model.Recipient{Email: "Ann <ann@example.com>"}))
}
