package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverlaysDefaults(t *testing.T) {
	o, err := Parse([]byte(`
features:
  movbe: true
  bmi2: true
passes:
  flag_reuse: false
known_gqr:
  6: 0x00070007
`))
	require.NoError(t, err)

	assert.True(t, o.Features.MOVBE)
	assert.True(t, o.Features.BMI2)
	assert.False(t, o.Features.LZCNT)

	assert.False(t, o.Passes.FlagReuse)
	assert.True(t, o.Passes.CRBits, "untouched pass keeps default")

	v, ok := o.GQR(6)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x00070007), v)

	v, ok = o.GQR(0)
	assert.True(t, ok)
	assert.Zero(t, v)

	_, ok = o.GQR(7)
	assert.False(t, ok)
}

func TestParseRejectsBadGQR(t *testing.T) {
	_, err := Parse([]byte("known_gqr: {9: 1}"))
	assert.Error(t, err)

	_, err = Parse([]byte("features: [1, 2"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "ppcrec.yaml")

	err := os.WriteFile(p, []byte("verify: false\nfeatures: {lzcnt: true}\n"), 0o644)
	require.NoError(t, err)

	o, err := Load(p)
	require.NoError(t, err)

	assert.False(t, o.Verify)
	assert.True(t, o.Features.LZCNT)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
