package walletmodel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserInputError(t *testing.T) {
	err := NewUserInputError("bad address %q", "xyz")
	assert.Equal(t, `bad address "xyz"`, err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapUserInputError(t *testing.T) {
	cause := errors.New("boom")
	err := WrapUserInputError(cause, "decrypting")
	assert.Equal(t, "decrypting: boom", err.Error())
	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestInternalServerError(t *testing.T) {
	err := NewInternalServerError("node unreachable")
	assert.Equal(t, "node unreachable", err.Error())

	cause := errors.New("timeout")
	wrapped := WrapInternalServerError(cause, "rpc call")
	assert.Equal(t, "rpc call: timeout", wrapped.Error())
	assert.True(t, errors.Is(wrapped, cause))
}

func TestSanityCheckFailed(t *testing.T) {
	err := NewSanityCheckFailed("input %d signature invalid", 2)
	assert.Equal(t, "input 2 signature invalid", err.Error())

	cause := errors.New("parse failure")
	wrapped := WrapSanityCheckFailed(cause, "input 0")
	assert.Equal(t, "input 0: parse failure", wrapped.Error())
	assert.True(t, errors.Is(wrapped, cause))
}
