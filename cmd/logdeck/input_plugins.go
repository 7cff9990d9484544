package main

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/logdeck/internal/logsource"
)

// NamedLogSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLogSource = logsource.LogSource

// InputSourcePlugin is a small plugin primitive for wiring text-stream inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	Files       []string
	MaxLineSize int
	// StdinPiped overrides stdin detection; nil probes os.Stdin.
	StdinPiped *bool
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	plugins := make([]InputSourcePlugin, 0, len(cfg.Files)+1)
	plugins = append(plugins, stdinInputPlugin{piped: cfg.StdinPiped, maxLineSize: cfg.MaxLineSize})
	for _, path := range cfg.Files {
		if path == "" {
			continue
		}
		plugins = append(plugins, fileInputPlugin{path: path, maxLineSize: cfg.MaxLineSize})
	}
	return plugins
}

func sourceConfig(maxLineSize int) logsource.Config {
	return logsource.Config{MaxLineSize: maxLineSize}
}

type stdinInputPlugin struct {
	piped       *bool
	maxLineSize int
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	if p.piped != nil {
		return *p.piped
	}
	return logsource.StdinIsPiped()
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	return logsource.NewStdinSource(ctx, sourceConfig(p.maxLineSize)), nil
}

type fileInputPlugin struct {
	path        string
	maxLineSize int
}

func (p fileInputPlugin) Name() string { return "file:" + p.path }

func (p fileInputPlugin) Enabled() bool { return true }

func (p fileInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	src, err := logsource.NewFileSource(ctx, p.path, sourceConfig(p.maxLineSize))
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", p.path, err)
	}
	return src, nil
}

// buildSources builds every enabled plugin; failures are reported and skipped.
func buildSources(ctx context.Context, plugins []InputSourcePlugin, onError func(name string, err error)) []NamedLogSource {
	sources := make([]NamedLogSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			if onError != nil {
				onError(plugin.Name(), err)
			}
			continue
		}
		sources = append(sources, src)
	}
	return sources
}
