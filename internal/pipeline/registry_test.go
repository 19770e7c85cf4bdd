package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryMissingArtifact(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "none.mpk"), nil)

	var notFound *ArtifactNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestRegistryReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.mpk")
	require.NoError(t, Save(path, testDefinition()))

	var loads, failures atomic.Int32
	reg, err := NewRegistry(path, func(l *Loaded, err error) {
		if err != nil {
			failures.Add(1)
			return
		}
		loads.Add(1)
	})
	require.NoError(t, err)
	first := reg.Current()
	assert.Equal(t, "test", first.Pipeline.Metadata.Version)

	def := testDefinition()
	def.Metadata.Version = "v2"
	require.NoError(t, Save(path, def))
	require.NoError(t, reg.Reload())

	assert.Equal(t, "v2", reg.Current().Pipeline.Metadata.Version)
	assert.Equal(t, int64(1), reg.Reloads())
	// the earlier snapshot is untouched
	assert.Equal(t, "test", first.Pipeline.Metadata.Version)

	require.NoError(t, os.WriteFile(path, []byte("broken"), 0o644))
	assert.Error(t, reg.Reload())
	assert.Equal(t, "v2", reg.Current().Pipeline.Metadata.Version)

	assert.Equal(t, int32(2), loads.Load())
	assert.Equal(t, int32(1), failures.Load())
}

func TestRegistryWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, Save(path, testDefinition()))

	reg, err := NewRegistry(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	def := testDefinition()
	def.Metadata.Version = "watched"
	require.NoError(t, Save(path, def))

	require.Eventually(t, func() bool {
		return reg.Current().Pipeline.Metadata.Version == "watched"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestStaticRegistry(t *testing.T) {
	p, err := Build(testDefinition())
	require.NoError(t, err)

	reg := NewStaticRegistry(p, "memory")
	assert.Same(t, p, reg.Current().Pipeline)
	assert.Equal(t, "memory", reg.Path())
}
