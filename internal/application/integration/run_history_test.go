package integration

import (
	"testing"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHistory(t *testing.T) {
	h := NewRunHistory()

	_, ok := h.LatestSync("tienda")
	assert.False(t, ok)
	assert.Empty(t, h.Channels())

	first := integration.NewRunReport("tienda", false)
	second := integration.NewRunReport("tienda", true)
	h.RecordSync(first)
	h.RecordSync(second)
	h.RecordReconcile(&ReconcileReport{Channel: "moraleja"})

	latest, ok := h.LatestSync("tienda")
	require.True(t, ok)
	assert.Equal(t, second.RunID, latest.RunID)

	rec, ok := h.LatestReconcile("moraleja")
	require.True(t, ok)
	assert.Equal(t, integration.ChannelKey("moraleja"), rec.Channel)

	assert.Equal(t, []integration.ChannelKey{"moraleja", "tienda"}, h.Channels())
}
