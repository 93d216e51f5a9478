package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedTokenGenerator(t *testing.T) {
	gen := NewFixedTokenGenerator("sub-42")
	assert.Equal(t, "sub-42", gen.Generate())
	assert.Equal(t, "sub-42", gen.Generate())
}

func TestFixedTokenGenerator_DefaultToken(t *testing.T) {
	gen := NewFixedTokenGenerator("")
	assert.Equal(t, "test-sub-default", gen.Generate())
}
