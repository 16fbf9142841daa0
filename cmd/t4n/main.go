// Command t4n is the chat backend for the code canvas UI. It reads one JSON
// request per line on stdin and writes JSON responses and stream events,
// one per line, on stdout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/youruser/t4n/internal/config"
	"github.com/youruser/t4n/internal/llm"
	"github.com/youruser/t4n/internal/logging"
)

const version = "0.4.0"

// buildCommit is set via -ldflags or falls back to VCS info from debug.ReadBuildInfo.
var buildCommit string

var log = logging.Get()

// getBuildCommit returns the short commit hash, resolving from VCS build info if needed.
func getBuildCommit() string {
	if buildCommit != "" {
		return buildCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}

func versionString() string {
	v := strings.TrimSpace(version)
	if commit := getBuildCommit(); commit != "" {
		return v + " (" + commit + ")"
	}
	return v
}

func main() {
	app := &cli.App{
		Name:    "t4n",
		Usage:   "JSON-lines chat backend for the code canvas",
		Version: versionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (default ~/.config/t4n/config.json)",
				EnvVars: []string{"T4N_CONFIG"},
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "t4n: %v\n", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	defer log.Close()
	logBuildInfo()

	cfg, err := loadConfig(c.String("config"))
	var client chatClient
	if err != nil {
		// Keep serving: ping, canvas and transcript actions work without a
		// backend, and send reports the config problem.
		log.Error("config: %v", err)
		client = unavailableClient{err: err}
		cfg = config.Default()
	} else {
		client = newLLMClient(cfg)
	}

	b := newBackend(os.Stdout, cfg, client)
	return b.run(c.Context, os.Stdin)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func newLLMClient(cfg *config.Config) *llm.Client {
	policy := llm.DefaultRetryPolicy()
	if r := cfg.Retry; r != nil {
		if r.MaxRetries != nil {
			policy.MaxRetries = *r.MaxRetries
		}
		policy.BaseDelay = msDuration(r.BaseDelayMS)
		policy.MaxDelay = msDuration(r.MaxDelayMS)
		if len(r.RetryableStatuses) > 0 {
			policy.RetryableStatuses = r.RetryableStatuses
		}
	}
	return llm.NewClient(cfg.APIBaseURL, cfg.APIKey, &policy, cfg.RequestTimeout())
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func logBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		log.Info("Build info: unavailable")
		return
	}

	var revision, buildTime, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			buildTime = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}

	v := info.Main.Version
	if revision != "" {
		v = revision
	}
	if modified == "true" {
		v += " (modified)"
	}
	if buildTime != "" {
		log.Info("Build: %s; go=%s; time=%s", v, runtime.Version(), buildTime)
		return
	}
	log.Info("Build: %s; go=%s", v, runtime.Version())
}

// unavailableClient stands in for the API client when no usable config was
// found. Every call fails with the config error.
type unavailableClient struct{ err error }

func (u unavailableClient) StreamMessage(context.Context, string, string) (*http.Response, error) {
	return nil, u.err
}

func (u unavailableClient) ExecutePlugin(context.Context, string, string, map[string]any) (llm.PluginResult, error) {
	return nil, u.err
}
