package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := newError(KindDiscovery, "no usable metadata")
	assert.Equal(t, "discovery: no usable metadata", err.Error())

	wrapped := wrapError(KindTokenExchange, errors.New("connection refused"), "token endpoint request failed")
	assert.Equal(t, "token_exchange: token endpoint request failed: connection refused", wrapped.Error())
}

func TestIsKind(t *testing.T) {
	err := newError(KindInvalidState, "state mismatch")

	assert.True(t, IsKind(err, KindInvalidState))
	assert.False(t, IsKind(err, KindTokenExchange))
	assert.False(t, IsKind(errors.New("plain"), KindInvalidState))
	assert.False(t, IsKind(nil, KindInvalidState))
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := newError(KindTokenRefresh, "refresh token revoked")
	outer := fmt.Errorf("reconnect failed: %w", inner)

	assert.True(t, IsKind(outer, KindTokenRefresh))
	var authErr *Error
	assert.True(t, errors.As(outer, &authErr))
	assert.Equal(t, KindTokenRefresh, authErr.Kind)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := wrapError(KindRegistration, cause, "registration request failed")
	assert.True(t, errors.Is(err, cause))
}
