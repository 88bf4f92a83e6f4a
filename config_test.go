package fedcoord_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
unreachable_threshold = 3

[[clients]]
id = "c1"
name = "alpha"

[[clients]]
id = "c2"

[[model.layers]]
name = "dense"
size = 4

[[model.layers]]
name = "bias"
size = 1
`

func TestParseConfig(t *testing.T) {
	cases := []struct {
		desc string
		data string
		err  error
	}{
		{desc: "valid config", data: validConfig},
		{
			desc: "no clients",
			data: "[[model.layers]]\nname = \"w\"\nsize = 1\n",
			err:  fedcoord.ErrNoClients,
		},
		{
			desc: "no layers",
			data: "[[clients]]\nid = \"c1\"\n",
			err:  fedcoord.ErrNoLayers,
		},
		{
			desc: "zero sized layer",
			data: "[[clients]]\nid = \"c1\"\n[[model.layers]]\nname = \"w\"\nsize = 0\n",
			err:  fedcoord.ErrInvalidSize,
		},
		{
			desc: "duplicate layer",
			data: "[[clients]]\nid = \"c1\"\n[[model.layers]]\nname = \"w\"\nsize = 1\n[[model.layers]]\nname = \"w\"\nsize = 2\n",
			err:  fedcoord.ErrDuplicate,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, err := fedcoord.ParseConfig([]byte(tc.data))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(3), cfg.UnreachableThreshold)
			require.Len(t, cfg.Clients, 2)
			assert.Equal(t, "alpha", cfg.Clients[0].Name)
			assert.Equal(t, fl.Shape{"dense": 4, "bias": 1}, cfg.Shape())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	cfg, err := fedcoord.LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Model.Layers, 2)

	_, err = fedcoord.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
