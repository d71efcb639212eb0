package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/toc"
)

func TestSaveLoad(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	entries := []toc.Entry{
		{ID: 0, Group: "pm", Name: "vbat", Type: toc.Float32},
		{ID: 1, Group: "firmware", Name: "revision", Type: toc.Uint32, ReadOnly: true},
	}
	require.NoError(t, store.Save(crtp.PortParam, 0xABCD, entries))

	loaded, err := store.Load(crtp.PortParam, 0xABCD)
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)

	// tables are per port
	_, err = store.Load(crtp.PortLog, 0xABCD)
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(crtp.PortLog, 1)
	assert.Error(t, err)
}

var _ toc.Cache = (*Store)(nil)
