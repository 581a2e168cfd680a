package mmip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	require.Equal(t, 9000.0, p.Tau())
	require.Equal(t, 1200.0, p.Kappa())
	require.Equal(t, 16, p.SBQScale())
	require.Equal(t, uint16(9000), p.BoneThreshold())
	require.False(t, p.StrictDequant())
	require.Len(t, p.Stages(), 3)
}

func TestParamsOptions(t *testing.T) {
	p := DefaultParams(WithSBQScale(32), WithBoneThreshold(8000), WithStrictDequant(true))
	require.Equal(t, 32, p.SBQScale())
	require.Equal(t, uint16(8000), p.BoneThreshold())
	require.True(t, p.StrictDequant())
}

func TestLoadParamsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tau: 8500\nsb_qscale: 8\nstrict_dequant: true\n"), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	require.Equal(t, 8500.0, p.Tau())
	require.Equal(t, 8, p.SBQScale())
	require.True(t, p.StrictDequant())
	// Unset fields keep their compile-time defaults.
	require.Equal(t, 1200.0, p.Kappa())
}

func TestLoadParamsMissingFile(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestStagesReturnsACopy(t *testing.T) {
	p := DefaultParams()
	stages := p.Stages()
	stages[0].Beta = 999
	require.NotEqual(t, 999.0, p.Stages()[0].Beta)
}
