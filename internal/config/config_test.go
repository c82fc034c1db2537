package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "etcd", cfg.CoordinationBackend)
	assert.Equal(t, []string{"localhost:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 5*time.Second, cfg.EtcdTimeout)
	assert.Equal(t, "/nlm", cfg.RootPath)
	assert.Equal(t, "json", cfg.RecordCodec)
	assert.Equal(t, 10*time.Second, cfg.MutexSessionTTL)
	assert.Equal(t, ":9090", cfg.Advertised())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
coordination_backend: memory
root_path: /locks
record_codec: proto
log_level: debug
grpc_listen_addr: ":7000"
advertise_addr: "nlmd-0:7000"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("NLM_ROOT_PATH", "/from-env")
	t.Setenv("NLM_ETCD_ENDPOINTS", "a:2379,b:2379")

	cfg, err := load(viper.New(), dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.CoordinationBackend)
	assert.Equal(t, "/from-env", cfg.RootPath, "env overrides the file")
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, "proto", cfg.RecordCodec)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "nlmd-0:7000", cfg.Advertised())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"NLM_RECORD_CODEC":         "xml",
		"NLM_ROOT_PATH":            "relative",
		"NLM_COORDINATION_BACKEND": "zookeeper",
		"NLM_CENSUS_SCHEDULE":      "every now and then",
		"NLM_MUTEX_SESSION_TTL":    "100ms",
	}
	for env, value := range cases {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			_, err := load(viper.New(), t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("root_path: [unclosed"), 0o600))
	_, err := load(viper.New(), dir)
	assert.Error(t, err)
}
