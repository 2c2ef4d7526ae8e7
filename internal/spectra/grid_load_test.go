package spectra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridFileRoundTrip(t *testing.T) {
	g := testGrid(t)

	path := filepath.Join(t.TempDir(), "grid.json")
	require.NoError(t, WriteGridFile(path, g))

	loaded, err := LoadGridTable(path)
	require.NoError(t, err)

	assert.Equal(t, g.Channels(), loaded.Channels())
	assert.Equal(t, g.RefSigmaV, loaded.RefSigmaV)
	assert.Equal(t, g.RefJFactor, loaded.RefJFactor)
	assert.Equal(t, "b", loaded.ChannelName(5))

	// Interpolated values agree everywhere we care to check.
	for _, e := range []float64{15, 100, 3500} {
		want, _, err := g.FluxAt(11, 3000, e)
		require.NoError(t, err)
		got, _, err := loaded.FluxAt(11, 3000, e)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12+1e-9*want, "energy %g", e)
	}
}

func TestLoadGridTableRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "grid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
		_, err := LoadGridTable(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadGridTable(filepath.Join(dir, "absent.json"))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		_, err := LoadGridTable(path)
		assert.Error(t, err)
	})
}

func TestParseGridTableValidation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"bad energy unit", `{"energy_unit":"erg","ref_sigma_v":3e-26,"ref_j_factor":1e18,"channels":[{"id":5}],"masses":[100,1000],"energies":[10,100],"flux":[[[1,2],[3,4]]]}`},
		{"zero ref sigma v", `{"ref_sigma_v":0,"ref_j_factor":1e18,"channels":[{"id":5}],"masses":[100,1000],"energies":[10,100],"flux":[[[1,2],[3,4]]]}`},
		{"zero ref j factor", `{"ref_sigma_v":3e-26,"ref_j_factor":0,"channels":[{"id":5}],"masses":[100,1000],"energies":[10,100],"flux":[[[1,2],[3,4]]]}`},
		{"no channels", `{"ref_sigma_v":3e-26,"ref_j_factor":1e18,"channels":[],"masses":[100,1000],"energies":[10,100],"flux":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGridTable([]byte(tt.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestParseGridTableTeVUnits(t *testing.T) {
	// Node coordinates declared in TeV convert to GeV on load.
	src := `{"energy_unit":"TeV","ref_sigma_v":3e-26,"ref_j_factor":1e18,
		"channels":[{"id":5,"name":"b"}],
		"masses":[0.1,1.0],"energies":[0.01,0.1],
		"flux":[[[1,2],[3,4]]]}`
	g, err := ParseGridTable([]byte(src))
	require.NoError(t, err)

	lo, hi := g.MassRange()
	assert.Equal(t, 100.0, lo)
	assert.Equal(t, 1000.0, hi)
	eLo, eHi := g.EnergyRange()
	assert.Equal(t, 10.0, eLo)
	assert.Equal(t, 100.0, eHi)
}
