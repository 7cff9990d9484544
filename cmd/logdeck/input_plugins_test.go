package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/ingest"
	"github.com/tinytelemetry/logdeck/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func TestBuildInputPlugins_RegistersPrimitives(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{
		Files:      []string{"/var/log/a.log", "", "/var/log/b.log"},
		StdinPiped: boolPtr(true),
	})

	if len(plugins) != 3 {
		t.Fatalf("expected 3 plugins, got %d", len(plugins))
	}
	if plugins[0].Name() != "stdin" {
		t.Fatalf("plugins[0] name = %q, want %q", plugins[0].Name(), "stdin")
	}
	if plugins[1].Name() != "file:/var/log/a.log" || plugins[2].Name() != "file:/var/log/b.log" {
		t.Fatalf("file plugin names = %q, %q", plugins[1].Name(), plugins[2].Name())
	}
	if !plugins[0].Enabled() {
		t.Fatal("expected stdin plugin to be enabled when stdin is piped")
	}
}

func TestBuildInputPlugins_StdinNotPiped(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{StdinPiped: boolPtr(false)})
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}
	if plugins[0].Enabled() {
		t.Fatal("expected stdin plugin to be disabled on a terminal")
	}
}

func TestBuildSources_SkipsFailedPlugins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.log")
	if err := os.WriteFile(good, []byte("line\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	plugins := buildInputPlugins(InputPluginConfig{
		Files:      []string{filepath.Join(dir, "missing.log"), good},
		StdinPiped: boolPtr(false),
	})

	var failed []string
	sources := buildSources(context.Background(), plugins, func(name string, err error) {
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("plugin %s error = %v, want not-exist", name, err)
		}
		failed = append(failed, name)
	})
	defer func() {
		for _, src := range sources {
			src.Stop()
		}
	}()

	if len(sources) != 1 || sources[0].Name() != "good.log" {
		t.Fatalf("sources = %v, want only good.log", sources)
	}
	if len(failed) != 1 || !strings.HasSuffix(failed[0], "missing.log") {
		t.Fatalf("failed plugins = %v", failed)
	}
}

func TestPipeline_FileToEngine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	content := strings.Join([]string{
		`12:00:01.250 WRN api handler.go:42 > slow request path=/orders ms=812`,
		`not a log line`,
		`{"ts":1000,"lvl":"ERR","msg":"boom"}`,
		`{`,
		`  "src": "worker",`,
		`  "msg": "multi"`,
		`}`,
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	eng := engine.New()
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plugins := buildInputPlugins(InputPluginConfig{Files: []string{path}, StdinPiped: boolPtr(false)})
	mux := NewSourceMultiplexer(ctx, buildSources(ctx, plugins, nil), 16)
	batcher := ingest.NewBatcher(eng, ingest.BatcherConfig{BatchSize: 2, FlushInterval: 10 * time.Millisecond})
	processor, err := ingest.NewEnvelopeProcessor("", batcher, mux.PrimarySourceName())
	if err != nil {
		t.Fatalf("NewEnvelopeProcessor: %v", err)
	}

	mux.Start()
	for env := range mux.Lines() {
		processor.ProcessEnvelope(env)
	}
	batcher.Stop()

	got := eng.Snapshot(nil)
	if len(got) != 3 {
		t.Fatalf("engine holds %d entries, want 3: %+v", len(got), got)
	}
	if got[0].Source != "api" || got[0].Level != model.LevelWarn || got[0].Message != "slow request" {
		t.Fatalf("text entry = %+v", got[0])
	}
	if got[1].Source != "app.log" || got[1].Level != model.LevelError {
		t.Fatalf("json entry without src = %+v, want the input name as source", got[1])
	}
	if got[2].Source != "worker" || got[2].Message != "multi" {
		t.Fatalf("multi-line entry = %+v", got[2])
	}
	if srcs := eng.Sources(); len(srcs) != 3 {
		t.Fatalf("sources = %v", srcs)
	}
}

func TestLoadConfig_AddressResolution(t *testing.T) {
	resetLogdeckEnv(t)

	tests := []struct {
		name        string
		configYAML  string
		wantHost    string
		wantTCPAddr string
		wantAPIAddr string
	}{
		{
			name: "defaults to localhost host",
			configYAML: `
tcp-port: 4100
api-port: 3100
`,
			wantHost:    "127.0.0.1",
			wantTCPAddr: "127.0.0.1:4100",
			wantAPIAddr: "127.0.0.1:3100",
		},
		{
			name: "host applies to derived tcp and api addresses",
			configYAML: `
host: 0.0.0.0
tcp-port: 4200
api-port: 3200
`,
			wantHost:    "0.0.0.0",
			wantTCPAddr: "0.0.0.0:4200",
			wantAPIAddr: "0.0.0.0:3200",
		},
		{
			name: "explicit addresses override host and ports",
			configYAML: `
host: 0.0.0.0
tcp-port: 4300
api-port: 3300
tcp-addr: 10.0.0.5:9999
api-addr: 10.0.0.5:8888
`,
			wantHost:    "0.0.0.0",
			wantTCPAddr: "10.0.0.5:9999",
			wantAPIAddr: "10.0.0.5:8888",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML))
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Fatalf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.TCPAddr != tt.wantTCPAddr {
				t.Fatalf("TCPAddr = %q, want %q", cfg.TCPAddr, tt.wantTCPAddr)
			}
			if cfg.APIAddr != tt.wantAPIAddr {
				t.Fatalf("APIAddr = %q, want %q", cfg.APIAddr, tt.wantAPIAddr)
			}
		})
	}
}

func TestLoadConfig_EngineSettings(t *testing.T) {
	resetLogdeckEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		wantErr      bool
		errSubstring string
		assert       func(t *testing.T, cfg appConfig)
	}{
		{
			name:       "defaults",
			configYAML: `tcp-port: 4000`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.Retention != model.DefaultRetentionBound {
					t.Fatalf("retention = %d, want %d", cfg.Retention, model.DefaultRetentionBound)
				}
				if cfg.SubscriberQueue != model.DefaultSubscriberQueue {
					t.Fatalf("subscriber-queue = %d", cfg.SubscriberQueue)
				}
				if cfg.Processor != ingest.ProcessorModeParse {
					t.Fatalf("processor = %q", cfg.Processor)
				}
				if cfg.FlushInterval != ingest.DefaultFlushInterval || cfg.BatchSize != ingest.DefaultBatchSize {
					t.Fatalf("batching = %d / %s", cfg.BatchSize, cfg.FlushInterval)
				}
				if !cfg.TCPEnabled || !cfg.APIEnabled {
					t.Fatal("listeners should be enabled by default")
				}
				if cfg.ConfigPath == "" {
					t.Fatal("ConfigPath should name the file that was read")
				}
			},
		},
		{
			name: "custom engine and inputs",
			configYAML: `
retention: 200
subscriber-queue: 16
flush-interval: 250ms
inputs:
  - ~/logs/app.log
  - /var/log/syslog
filter-file: ~/.config/logdeck/errors.yml
log-file: "-"
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				home, _ := os.UserHomeDir()
				if cfg.Retention != 200 || cfg.SubscriberQueue != 16 {
					t.Fatalf("retention/queue = %d/%d", cfg.Retention, cfg.SubscriberQueue)
				}
				if cfg.FlushInterval != 250*time.Millisecond {
					t.Fatalf("flush-interval = %s", cfg.FlushInterval)
				}
				if len(cfg.Inputs) != 2 || cfg.Inputs[0] != filepath.Join(home, "logs", "app.log") || cfg.Inputs[1] != "/var/log/syslog" {
					t.Fatalf("inputs = %v", cfg.Inputs)
				}
				if cfg.FilterFile != filepath.Join(home, ".config", "logdeck", "errors.yml") {
					t.Fatalf("filter-file = %q", cfg.FilterFile)
				}
				if cfg.LogFile != "-" {
					t.Fatalf("log-file = %q", cfg.LogFile)
				}
			},
		},
		{
			name:         "invalid tcp port rejected",
			configYAML:   `tcp-port: 70000`,
			wantErr:      true,
			errSubstring: "invalid tcp-port",
		},
		{
			name:         "invalid retention rejected",
			configYAML:   `retention: 0`,
			wantErr:      true,
			errSubstring: "invalid retention",
		},
		{
			name:         "invalid subscriber queue rejected",
			configYAML:   `subscriber-queue: -1`,
			wantErr:      true,
			errSubstring: "invalid subscriber-queue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstring != "" && !strings.Contains(err.Error(), tt.errSubstring) {
					t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if tt.assert != nil {
				tt.assert(t, cfg)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	resetLogdeckEnv(t)
	t.Setenv("LOGDECK_RETENTION", "123")
	t.Setenv("LOGDECK_TCP_ENABLED", "false")

	cfg, err := loadConfig(writeTempConfig(t, `retention: 50`))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Retention != 123 {
		t.Fatalf("retention = %d, want env value 123", cfg.Retention)
	}
	if cfg.TCPEnabled {
		t.Fatal("LOGDECK_TCP_ENABLED=false not applied")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetLogdeckEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	existed := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "LOGDECK_") {
			continue
		}
		original[key] = value
		existed[key] = true
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key := range existed {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("cleanup unset %s: %v", key, err)
			}
		}
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
