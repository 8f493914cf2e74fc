package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/ttsd/internal/envvar"
)

const validConfig = `
version: "1"
server:
  http_port: 8080
  rate_limit: 5
  burst: 10
  request_timeout: 45s
storage:
  models_dir: /var/lib/ttsd/models
backends:
  piper:
    bin_path: /usr/local/bin/piper
    timeout: 30s
  bark:
    endpoint: http://127.0.0.1:5005
models:
  vctk:
    type: tts
    backend: piper
    order: 1
    concurrency: 2
    parameters:
      length_scale: 1.1
    source:
      huggingface:
        repo: rhasspy/piper-voices
        include: ["en/en_GB/vctk/medium/*"]
  bark-small:
    type: tts
    backend: bark
    source:
      local:
        path: /opt/bark
services:
  tts:
    models: [vctk]
  bark:
    models: [bark-small]
archive:
  nats_url: nats://127.0.0.1:4222
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.Backends.Piper.Timeout)
	assert.True(t, cfg.Backends.Bark.Enabled())
	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, DefaultArchiveBucket, cfg.ArchiveBucket())

	vctk := cfg.Models["vctk"]
	assert.Equal(t, 2, vctk.Concurrency)
	assert.InDelta(t, 1.1, vctk.Parameters["length_scale"], 1e-9)

	src, err := vctk.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeHuggingFace, src.Type())

	bark := cfg.Models["bark-small"]
	src, err = bark.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeLocal, src.Type())
	assert.Equal(t, "/opt/bark", src.(LocalSource).Path)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr error
	}{
		{
			name:   "invalid yaml",
			config: "version: [",
		},
		{
			name: "unknown field",
			config: `
version: "1"
models: {}
services: {tts: {models: [a]}}
colour: blue
`,
		},
		{
			name: "unknown backend",
			config: `
version: "1"
models:
  a: {type: tts, backend: coqui, source: {local: {path: /x}}}
services: {tts: {models: [a]}}
`,
		},
		{
			name: "two sources",
			config: `
version: "1"
models:
  a: {type: tts, backend: piper, source: {local: {path: /x}, huggingface: {repo: r}}}
services: {tts: {models: [a]}}
`,
		},
		{
			name: "bad duration",
			config: `
version: "1"
server: {request_timeout: soon}
models:
  a: {type: tts, backend: piper, source: {local: {path: /x}}}
services: {tts: {models: [a]}}
`,
		},
		{
			name: "unknown model reference",
			config: `
version: "1"
models:
  a: {type: tts, backend: piper, source: {local: {path: /x}}}
services: {tts: {models: [b]}}
`,
			wantErr: ErrUnknownModel,
		},
		{
			name: "piper model on bark service",
			config: `
version: "1"
models:
  a: {type: tts, backend: piper, source: {local: {path: /x}}}
services: {tts: {models: [a]}, bark: {models: [a]}}
`,
			wantErr: ErrWrongBackend,
		},
		{
			name: "no tts model",
			config: `
version: "1"
models: {}
services: {tts: {models: []}}
`,
			wantErr: ErrNoDefaultTTSModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.config))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestToJSONValue_KeepsNumbers(t *testing.T) {
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte("server: {http_port: 8080, rate_limit: 2.5}"), &raw))

	doc, err := toJSONValue(raw)
	require.NoError(t, err)

	server := doc.(map[string]any)["server"].(map[string]any)
	assert.Equal(t, json.Number("8080"), server["http_port"])
	assert.Equal(t, json.Number("2.5"), server["rate_limit"])
}

func TestParse_IntegerPortsAgainstSchema(t *testing.T) {
	sch, err := compiledSchema()
	require.NoError(t, err)
	require.NotNil(t, sch)

	cfg, err := Parse([]byte(`
version: "1"
server: {http_port: 5002, grpc_port: 50051, burst: 3}
models:
  a: {type: tts, backend: piper, concurrency: 4, source: {local: {path: /x}}}
services: {tts: {models: [a]}}
`))
	require.NoError(t, err)
	assert.Equal(t, 5002, cfg.Server.HTTPPort)
	assert.Equal(t, 50051, cfg.Server.GRPCPort)
	assert.Equal(t, 4, cfg.Models["a"].Concurrency)

	for name, server := range map[string]string{
		"string port":    `{http_port: "5002"}`,
		"port too large": `{http_port: 70000}`,
		"fractional":     `{grpc_port: 50051.5}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(`
version: "1"
server: ` + server + `
models:
  a: {type: tts, backend: piper, source: {local: {path: /x}}}
services: {tts: {models: [a]}}
`))
			assert.ErrorContains(t, err, "config validation failed")
		})
	}
}

func TestPortPrecedence(t *testing.T) {
	cfg := &Config{Server: ServerConfig{HTTPPort: 8080}}

	t.Setenv(envvar.TTSDServerHTTPPort, "")
	t.Setenv(envvar.TTSDServerGRPCPort, "")
	assert.Equal(t, 8080, cfg.HTTPPort())
	assert.Equal(t, DefaultGRPCPort, cfg.GRPCPort())

	var empty *Config
	assert.Equal(t, DefaultHTTPPort, empty.HTTPPort())

	t.Setenv(envvar.TTSDServerHTTPPort, "9000")
	assert.Equal(t, 9000, cfg.HTTPPort())

	t.Setenv(envvar.TTSDServerHTTPPort, "not-a-port")
	assert.Equal(t, 8080, cfg.HTTPPort())
}

func TestModelsDir(t *testing.T) {
	t.Setenv(envvar.TTSDModelsPath, "")
	cfg := &Config{Storage: StorageConfig{ModelsDir: "/srv/models"}}
	assert.Equal(t, "/srv/models", cfg.ModelsDir())

	t.Setenv(envvar.TTSDModelsPath, "/tmp/models")
	assert.Equal(t, "/tmp/models", cfg.ModelsDir())

	t.Setenv(envvar.TTSDModelsPath, "")
	assert.Equal(t, DefaultModelsPath(), (&Config{}).ModelsDir())
}

func TestWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))

	var (
		mu       sync.Mutex
		reloaded *Config
	)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			reloaded = cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 8080, w.Snapshot().Server.HTTPPort)

	changed := strings.Replace(validConfig, "http_port: 8080", "http_port: 8081", 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && reloaded.Server.HTTPPort == 8081
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, 8081, w.Snapshot().Server.HTTPPort)
	assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
}

func TestWatcherInvalidInitialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte("version: 2"), 0o644))

	_, err := NewWatcher(path, nil)
	assert.ErrorContains(t, err, "failed to load initial config")
}
