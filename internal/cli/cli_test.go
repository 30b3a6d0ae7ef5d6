package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/walletprobe/internal/config"
	"github.com/wesleyorama2/walletprobe/internal/profile"
)

// runCLI executes the command line and returns exit code, stdout and
// stderr.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	code := execute(context.Background(), root, args, &stderr)
	return code, stdout.String(), stderr.String()
}

func okServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu   sync.Mutex
		keys []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			mu.Lock()
			keys = append(keys, key)
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"committed"}`))
	}))
	t.Cleanup(server.Close)
	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), keys...)
	}
}

func TestRun_SmokePasses(t *testing.T) {
	server, keys := okServer(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	code, stdout, stderr := runCLI(t, "run",
		"--profile", "smoke",
		"--base-url", server.URL,
		"--secret", "cli-test",
		"--run-id", "r1",
		"--json", reportPath,
		"--no-color",
		"--log-level", "warn")

	require.Equal(t, ExitPassed, code, "stdout:\n%s\nstderr:\n%s", stdout, stderr)
	assert.Contains(t, stdout, "smoke - Completed ✓")
	assert.Contains(t, stdout, "Report written to: "+reportPath)

	got := keys()
	require.Len(t, got, 20)
	for _, k := range got {
		assert.True(t, strings.HasPrefix(k, "smoke-r1-"), k)
	}

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report struct {
		Passed bool   `json:"passed"`
		RunID  string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.True(t, report.Passed)
	assert.Equal(t, "r1", report.RunID)
}

func TestRun_HTMLReport(t *testing.T) {
	server, _ := okServer(t)
	htmlPath := filepath.Join(t.TempDir(), "report.html")

	code, stdout, stderr := runCLI(t, "run",
		"--profile", "smoke",
		"--base-url", server.URL,
		"--secret", "cli-test",
		"--run-id", "h1",
		"--html", htmlPath,
		"--no-color",
		"--log-level", "warn")

	require.Equal(t, ExitPassed, code, "stdout:\n%s\nstderr:\n%s", stdout, stderr)
	assert.Contains(t, stdout, "HTML report written to: "+htmlPath)

	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "Run: h1")
	assert.Contains(t, html, "✓ PASSED")
}

func TestRun_ThresholdFailureExitsOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	code, stdout, _ := runCLI(t, "run", "--profile", "smoke", "--base-url", server.URL,
		"--secret", "cli-test", "--quiet", "--log-level", "error")

	assert.Equal(t, ExitThresholdFailed, code)
	assert.Equal(t, "FAILED", strings.TrimSpace(stdout))
}

func TestRun_ConfigErrorsExitTwo(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing secret", []string{"--profile", "smoke"}, "auth.secret"},
		{"unknown profile", []string{"--profile", "stress", "--secret", "x"}, "unknown profile"},
		{"rate on constant-vus", []string{"--profile", "smoke", "--secret", "x", "--rate", "5"}, "--rate"},
		{"duration on ramping", []string{"--profile", "spike", "--secret", "x", "--duration", "1m"}, "--duration"},
		{"bad log level", []string{"--profile", "smoke", "--log-level", "loud"}, "log level"},
		{"profile and config", []string{"--profile", "smoke", "--config", "x.yaml"}, "none of the others"},
		{"missing file", []string{"--config", "does-not-exist.yaml"}, "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, append([]string{"run"}, tt.args...)...)
			assert.Equal(t, ExitConfigError, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRun_JSONToStdout(t *testing.T) {
	server, _ := okServer(t)

	code, stdout, stderr := runCLI(t, "run", "--profile", "smoke", "--base-url", server.URL,
		"--secret", "cli-test", "--json", "-", "--no-color", "--log-level", "error")

	require.Equal(t, ExitPassed, code, stderr)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report), "stdout must hold only the report")
	assert.Equal(t, "smoke", report["name"])
	assert.Contains(t, stderr, "smoke - Completed ✓")
}

func TestRun_MetricsEndpoint(t *testing.T) {
	server, _ := okServer(t)

	code, _, stderr := runCLI(t, "run", "--profile", "smoke", "--base-url", server.URL,
		"--secret", "cli-test", "--metrics-addr", "127.0.0.1:0", "--quiet")

	require.Equal(t, ExitPassed, code, stderr)
	assert.Contains(t, stderr, "serving metrics")
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := profile.Get(profile.Baseline)
	require.NoError(t, err)

	err = applyOverrides(cfg, &runOptions{
		baseURL:  "http://wallet:9000",
		secret:   "s",
		audience: "aud",
		duration: "30s",
		rate:     250,
	})
	require.NoError(t, err)

	assert.Equal(t, "http://wallet:9000", cfg.Target.BaseURL)
	assert.Equal(t, "s", cfg.Auth.Secret)
	assert.Equal(t, "aud", cfg.Auth.Audience)
	assert.Equal(t, "30s", cfg.Scenario.Duration)
	assert.Equal(t, 250.0, cfg.Scenario.Rate)
	assert.Len(t, cfg.Workload.RunID, 36, "a random UUID run id is generated")

	cfg.Workload.RunID = "fixed"
	require.NoError(t, applyOverrides(cfg, &runOptions{}))
	assert.Equal(t, "fixed", cfg.Workload.RunID)

	var verr *config.ValidationError
	err = applyOverrides(cfg, &runOptions{vus: 3})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "--vus", verr.Field)

	err = applyOverrides(cfg, &runOptions{duration: "soon"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "--duration", verr.Field)
}

func TestProfilesCommand(t *testing.T) {
	code, stdout, _ := runCLI(t, "profiles")
	require.Equal(t, ExitPassed, code)

	for _, name := range profile.Names() {
		assert.Contains(t, stdout, name)
	}
	assert.Contains(t, stdout, "ramping-vus")
	assert.Contains(t, stdout, "6m0s")
}

func TestProfilesShow_RoundTrips(t *testing.T) {
	code, stdout, _ := runCLI(t, "profiles", "show", "spike")
	require.Equal(t, ExitPassed, code)

	cfg, err := config.ParseConfig([]byte(stdout), "spike.yaml")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "spike", cfg.Name)
	assert.Len(t, cfg.Scenario.Stages, 4)

	code, _, stderr := runCLI(t, "profiles", "show", "nope")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "unknown profile")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")

	require.NoError(t, os.WriteFile(good, []byte(`
name: good
scenario:
  executor: constant-arrival-rate
  rate: 100
  duration: 1m
  maxVUs: 50
thresholds:
  http_req_failed: ["rate<0.01"]
`), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte(`
name: bad
scenario:
  executor: ramping-vus
  stages:
    - {duration: 1m, target: -1}
thresholds:
  http_req_duration: ["p(95)<>150"]
`), 0o644))

	code, stdout, _ := runCLI(t, "validate", good)
	assert.Equal(t, ExitPassed, code)
	assert.Contains(t, stdout, "good.yaml: ok (constant-arrival-rate, 1m30s, up to 50 VUs, 1 thresholds)")

	code, stdout, stderr := runCLI(t, "validate", good, bad)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stdout, "bad.yaml: invalid")
	assert.Contains(t, stdout, "scenario.stages[0].target")
	assert.Contains(t, stdout, "thresholds.http_req_duration[0]")
	assert.Contains(t, stderr, "1 of 2 configuration files are invalid")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	line := strings.TrimSpace(buf.String())
	assert.NotContains(t, line, "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "shown", entry["msg"])

	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestExecute_UnknownFlag(t *testing.T) {
	code, _, stderr := runCLI(t, "run", "--bogus")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "unknown flag")
}
