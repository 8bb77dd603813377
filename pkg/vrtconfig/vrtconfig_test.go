package vrtconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {

	dir := t.TempDir()
	cwd, err := os.Getwd()
	assert.NoError(t, err)
	defer os.Chdir(cwd)

	assert.NoError(t, os.Chdir(dir))

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, uint32(DefaultChunkSizeKiB), cfg.ChunkSizeKiB)
	assert.Equal(t, uint32(2), cfg.SlotWidth)
	assert.Equal(t, 7900, cfg.TokenManagerPort)
}

func TestLoadReadsOverridesFromFile(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "vrt.yaml")
	contents := "slot_width: 3\nnb_spare: 1\ntoken_manager_port: 8123\n"
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, uint32(3), cfg.SlotWidth)
	assert.Equal(t, uint32(1), cfg.NbSpare)
	assert.Equal(t, 8123, cfg.TokenManagerPort)
	assert.Equal(t, uint32(DefaultChunkSizeKiB), cfg.ChunkSizeKiB)
}

func TestValidateRejectsChunkSizeBelowMinimum(t *testing.T) {

	cfg := defaults()
	cfg.ChunkSizeKiB = MinChunkSizeKiB - 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSlotWidthTooSmallForSpares(t *testing.T) {

	cfg := defaults()
	cfg.SlotWidth = 2
	cfg.NbSpare = 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {

	cfg := defaults()
	cfg.TokenManagerPort = 0
	assert.Error(t, cfg.Validate())
}
