package uid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionID(t *testing.T) {
	id, err := GenerateSessionID()
	require.NoError(t, err)
	assert.Len(t, id, 64) // 32 bytes hex-encoded

	other, err := GenerateSessionID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestGenerateConnectionID(t *testing.T) {
	id, err := GenerateConnectionID()
	require.NoError(t, err)
	assert.Len(t, id, 32)
}
