package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
max_request_bytes = 2048

[upstream]
host_url = "api.example.com"
timeout_seconds = 60
idle_connections = 50

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Server.MaxRequestBytes != 2048 {
		t.Errorf("Server.MaxRequestBytes = %d, want %d", cfg.Server.MaxRequestBytes, 2048)
	}
	if cfg.Upstream.HostURL != "api.example.com" {
		t.Errorf("Upstream.HostURL = %q, want %q", cfg.Upstream.HostURL, "api.example.com")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
[upstream]
host_url = "api.example.com"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default Server.Host = %q, want loopback", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.MaxRequestBytes != 1024 {
		t.Errorf("default Server.MaxRequestBytes = %d, want %d", cfg.Server.MaxRequestBytes, 1024)
	}
	if cfg.Upstream.TimeoutSeconds != 0 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want 0 (no timeout)", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Admin.Enabled {
		t.Error("expected Admin.Enabled = false by default")
	}
	if cfg.Admin.Addr() != "127.0.0.1:9090" {
		t.Errorf("default Admin.Addr() = %q, want %q", cfg.Admin.Addr(), "127.0.0.1:9090")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, "[upstream\nhost_url = ")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %q, want mention of parse", err)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 8080

[upstream]
host_url = "toml.example.com"

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		Host:     "localhost",
		Port:     3000,
		HostURL:  "cli.example.com",
		LogLevel: "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "localhost")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Upstream.HostURL != "cli.example.com" {
		t.Errorf("Upstream.HostURL = %q, want %q (CLI override)", cfg.Upstream.HostURL, "cli.example.com")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_CLIHostURLSatisfiesRequirement(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 8081\n")

	cfg, err := Load(&CLI{Config: path, HostURL: "api.example.com"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.HostURL != "api.example.com" {
		t.Errorf("Upstream.HostURL = %q, want %q", cfg.Upstream.HostURL, "api.example.com")
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "missing host_url",
			data:    "[server]\nport = 8080\n",
			wantErr: "upstream.host_url is required",
		},
		{
			name:    "unsupported scheme",
			data:    "[upstream]\nhost_url = \"ftp://api.example.com\"\n",
			wantErr: "http or https",
		},
		{
			name:    "negative port",
			data:    "[server]\nport = -1\n[upstream]\nhost_url = \"api.example.com\"\n",
			wantErr: "server.port",
		},
		{
			name:    "port too large",
			data:    "[server]\nport = 70000\n[upstream]\nhost_url = \"api.example.com\"\n",
			wantErr: "server.port",
		},
		{
			name:    "negative max_request_bytes",
			data:    "[server]\nmax_request_bytes = -1\n[upstream]\nhost_url = \"api.example.com\"\n",
			wantErr: "max_request_bytes",
		},
		{
			name:    "negative timeout",
			data:    "[upstream]\nhost_url = \"api.example.com\"\ntimeout_seconds = -5\n",
			wantErr: "timeout_seconds",
		},
		{
			name:    "negative idle connections",
			data:    "[upstream]\nhost_url = \"api.example.com\"\nidle_connections = -1\n",
			wantErr: "idle_connections",
		},
		{
			name:    "invalid log level",
			data:    "[upstream]\nhost_url = \"api.example.com\"\n[log]\nlevel = \"verbose\"\n",
			wantErr: "log.level",
		},
		{
			name:    "invalid log format",
			data:    "[upstream]\nhost_url = \"api.example.com\"\n[log]\nformat = \"xml\"\n",
			wantErr: "log.format",
		},
		{
			name:    "rate limit without rps",
			data:    "[upstream]\nhost_url = \"api.example.com\"\n[server.rate_limit]\nenabled = true\nrequests_per_second = 0\n",
			wantErr: "requests_per_second",
		},
		{
			name:    "admin port equals server port",
			data:    "[server]\nport = 8080\n[upstream]\nhost_url = \"api.example.com\"\n[admin]\nenabled = true\nport = 8080\n",
			wantErr: "admin.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatalf("Load() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[upstream]
host_url = "api.example.com"

[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestUpstreamConfig_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		hostURL  string
		wantURL  string
		wantHost string
	}{
		{"bare host", "api.example.com", "http://api.example.com", "api.example.com"},
		{"bare host with port", "127.0.0.1:8081", "http://127.0.0.1:8081", "127.0.0.1:8081"},
		{"http URL", "http://api.example.com", "http://api.example.com", "api.example.com"},
		{"https URL with path", "https://api.example.com/v1", "https://api.example.com/v1", "api.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &UpstreamConfig{HostURL: tt.hostURL}
			u, err := uc.BaseURL()
			if err != nil {
				t.Fatalf("BaseURL() error = %v", err)
			}
			if u.String() != tt.wantURL {
				t.Errorf("BaseURL() = %q, want %q", u.String(), tt.wantURL)
			}
			if u.Host != tt.wantHost {
				t.Errorf("BaseURL().Host = %q, want %q", u.Host, tt.wantHost)
			}
		})
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestWarnUnexposedMetrics(t *testing.T) {
	tests := []struct {
		name     string
		metrics  bool
		admin    bool
		wantWarn bool
	}{
		{"metrics without admin", true, false, true},
		{"metrics with admin", true, true, false},
		{"metrics disabled", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, fmt.Sprintf(
				"[upstream]\nhost_url = \"api.example.com\"\n[metrics]\nenabled = %t\n[admin]\nenabled = %t\n",
				tt.metrics, tt.admin))
			cfg, err := Load(cliWithPath(path))
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
			cfg.WarnUnexposedMetrics(logger)

			if got := strings.Contains(buf.String(), "metrics will not be exposed"); got != tt.wantWarn {
				t.Errorf("warned = %v, want %v; output: %q", got, tt.wantWarn, buf.String())
			}
		})
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeConfig(t, "[upstream]\nhost_url = \"a.example.com\"\n")
	path2 := writeConfig(t, "[upstream]\nhost_url = \"b.example.com\"\n")

	got := findConfigInPaths([]string{"/nonexistent/x.toml", path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		path    string
		wantErr string
		want    string
	}{
		{"default", true, "", "", "/metrics"},
		{"custom", true, "/custom-metrics", "", "/custom-metrics"},
		{"no leading slash", true, "metrics", "metrics.path", ""},
		{"healthz conflict", true, "/healthz", "conflicts", ""},
		{"status conflict", true, "/proxy/status/x", "conflicts", ""},
		{"disabled skips validation", false, "bad-no-slash", "", "bad-no-slash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "[upstream]\nhost_url = \"api.example.com\"\n[metrics]\n"
			if tt.enabled {
				data += "enabled = true\n"
			}
			if tt.path != "" {
				data += "path = \"" + tt.path + "\"\n"
			}

			cfg, err := Load(cliWithPath(writeConfig(t, data)))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Metrics.Path != tt.want {
				t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, tt.want)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
