package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("WORK_DIR", "")
	t.Setenv("DB_PATH", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "./work", cfg.Pipeline.WorkDir)
	assert.Equal(t, "./work/segtrans.db", cfg.Storage.DBPath)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.Equal(t, 10, cfg.Pipeline.CheckpointInterval)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, "en", cfg.Translate.TargetLanguage.String())
	assert.Equal(t, ":8066", cfg.HTTP.Addr)
}

func TestNewFromEnv_WorkersClamped(t *testing.T) {
	t.Setenv("WORKERS", "16")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pipeline.Workers)

	t.Setenv("WORKERS", "0")
	cfg, err = NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
}

func TestNewFromEnv_InvalidTargetLanguage(t *testing.T) {
	t.Setenv("TARGET_LANGUAGE", "not-a-language-tag!!")

	_, err := NewFromEnv()
	require.Error(t, err)
}

func TestNewFromEnv_RouterLadderValidation(t *testing.T) {
	t.Setenv("ROUTER_CHEAP_MAX", "0.8")
	t.Setenv("ROUTER_EXPENSIVE_MIN", "0.5")

	_, err := NewFromEnv()
	require.Error(t, err)
}

func TestNewFromEnv_Options(t *testing.T) {
	cfg, err := NewFromEnv(WithWorkDir("/tmp/st"), WithWorkers(3))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/st", cfg.Pipeline.WorkDir)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
}
