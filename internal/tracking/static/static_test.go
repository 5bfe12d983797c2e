package static_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/sweep/internal/tracking/static"
)

func TestClient(t *testing.T) {
	_, err := static.NewClient(static.ClientConfig{})
	assert.Error(t, err)

	c, err := static.NewClient(static.ClientConfig{SweepID: "abc123"})
	require.NoError(t, err)

	id, err := c.CreateSweep(context.TODO(), map[string]any{"method": "grid"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}
