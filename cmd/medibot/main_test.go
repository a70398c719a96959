package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/pipeline"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"./index", "what reduces fever", "-sources"},
			expected: []string{"-sources", "./index", "what reduces fever"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "./index", "question"},
			expected: []string{"-output", "json", "./index", "question"},
		},
		{
			name:     "positionals only returns unchanged",
			args:     []string{"./index", "question"},
			expected: []string{"./index", "question"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuestion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"aspirin"}, "aspirin"},
		{"multiple words", []string{"what", "reduces", "fever?"}, "what reduces fever?"},
		{"quoted question", []string{"what reduces fever?"}, "what reduces fever?"},
		{"blank args", []string{"  ", " "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuestion(tt.args); got != tt.expected {
				t.Errorf("buildQuestion(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config")
	}
}

// testEnv holds an offline configuration: hash embeddings and extractive answers.
type testEnv struct {
	dir    string
	config string
	docs   string
	index  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		docs:   filepath.Join(dir, "docs"),
		index:  filepath.Join(dir, "index"),
	}
	content := `
embedding:
  provider: hash
  dimensions: 256
generation:
  provider: extractive
retrieval:
  top_k: 3
  min_score: 0.3
`
	if err := os.WriteFile(env.config, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(env.docs, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"aspirin.txt":   "Aspirin reduces fever.",
		"ibuprofen.txt": "Ibuprofen treats headaches and swelling.",
	}
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(env.docs, name), []byte(text), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return env
}

func runApp(args []string, stdin string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	a := &app{stdin: strings.NewReader(stdin), stdout: &out, stderr: &errOut}
	code = a.run(args)
	return code, out.String(), errOut.String()
}

func TestRun_versionHelpAndUnknown(t *testing.T) {
	if code, out, _ := runApp([]string{"version"}, ""); code != 0 || !strings.Contains(out, "medibot version") {
		t.Errorf("version: code %d, out %q", code, out)
	}
	if code, out, _ := runApp([]string{"help"}, ""); code != 0 || !strings.Contains(out, "build-index") {
		t.Errorf("help: code %d", code)
	}
	if code, _, errOut := runApp([]string{"frobnicate"}, ""); code != 1 || !strings.Contains(errOut, "Unknown command") {
		t.Errorf("unknown: code %d, stderr %q", code, errOut)
	}
	if code, _, _ := runApp(nil, ""); code != 1 {
		t.Errorf("no args: code %d", code)
	}
}

func TestRun_buildIndexAskStatus(t *testing.T) {
	env := newTestEnv(t)

	code, out, errOut := runApp([]string{"build-index", "-config", env.config, env.docs, env.index}, "")
	if code != 0 {
		t.Fatalf("build-index: code %d, stderr %s", code, errOut)
	}
	if !strings.Contains(out, "Indexed 2 document(s)") {
		t.Errorf("build-index output: %s", out)
	}

	code, out, errOut = runApp([]string{"ask", env.index, "What", "reduces", "fever?", "-config", env.config, "-sources"}, "")
	if code != 0 {
		t.Fatalf("ask: code %d, stderr %s", code, errOut)
	}
	if !strings.Contains(out, "Aspirin reduces fever.") || !strings.Contains(out, "aspirin.txt") {
		t.Errorf("ask output: %s", out)
	}

	code, out, _ = runApp([]string{"ask", "-config", env.config, "-output", "json", env.index, "What reduces fever?"}, "")
	if code != 0 {
		t.Fatalf("ask json: code %d", code)
	}
	var answer models.Answer
	if err := json.Unmarshal([]byte(out), &answer); err != nil {
		t.Fatalf("ask json output: %v\n%s", err, out)
	}
	if answer.Status != models.StatusAnswered || answer.SessionID == "" {
		t.Errorf("answer: %+v", answer)
	}

	code, out, _ = runApp([]string{"ask", "-config", env.config, "-stream", env.index, "What reduces fever?"}, "")
	if code != 0 || !strings.Contains(out, "Aspirin reduces fever.") {
		t.Errorf("ask stream: code %d, out %q", code, out)
	}

	code, out, errOut = runApp([]string{"status", "-output", "json", env.index}, "")
	if code != 0 {
		t.Fatalf("status: code %d, stderr %s", code, errOut)
	}
	var status bundle.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output: %v\n%s", err, out)
	}
	if status.Documents != 2 || status.Vectors != 2 || status.Dimensions != 256 {
		t.Errorf("status: %+v", status)
	}
}

func TestRun_askEmptyCorpus(t *testing.T) {
	env := newTestEnv(t)
	empty := filepath.Join(env.dir, "empty")
	if err := os.MkdirAll(empty, 0755); err != nil {
		t.Fatal(err)
	}
	if code, _, errOut := runApp([]string{"build-index", "-config", env.config, empty, env.index}, ""); code != 0 {
		t.Fatalf("build-index: code %d, stderr %s", code, errOut)
	}
	code, out, _ := runApp([]string{"ask", "-config", env.config, env.index, "What reduces fever?"}, "")
	if code != 0 {
		t.Errorf("insufficient context should exit 0, got %d", code)
	}
	if !strings.Contains(out, pipeline.InsufficientContextAnswer) {
		t.Errorf("ask output: %s", out)
	}
}

func TestRun_askFailures(t *testing.T) {
	env := newTestEnv(t)
	if code, _, _ := runApp([]string{"build-index", "-config", env.config, env.docs, env.index}, ""); code != 0 {
		t.Fatal("build-index failed")
	}
	tests := []struct {
		name string
		args []string
	}{
		{"blank question", []string{"ask", "-config", env.config, env.index, "   "}},
		{"missing index", []string{"ask", "-config", env.config, filepath.Join(env.dir, "nowhere"), "What reduces fever?"}},
		{"missing question", []string{"ask", "-config", env.config, env.index}},
		{"bad output format", []string{"ask", "-config", env.config, "-output", "xml", env.index, "q?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runApp(tt.args, ""); code != 1 {
				t.Errorf("code = %d, want 1", code)
			}
		})
	}
}

func TestRun_buildIndexFailures(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing source", []string{"build-index", "-config", env.config, filepath.Join(env.dir, "nowhere"), env.index}},
		{"missing location", []string{"build-index", "-config", env.config, env.docs}},
		{"bad config", []string{"build-index", "-config", filepath.Join(env.dir, "missing.yaml"), env.docs, env.index}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runApp(tt.args, ""); code != 1 {
				t.Errorf("code = %d, want 1", code)
			}
		})
	}
}

func TestRun_chat(t *testing.T) {
	env := newTestEnv(t)
	if code, _, _ := runApp([]string{"build-index", "-config", env.config, env.docs, env.index}, ""); code != 0 {
		t.Fatal("build-index failed")
	}
	input := "What reduces fever?\n\n/reset\nWhat treats headaches?\n/exit\nnever asked\n"
	code, out, errOut := runApp([]string{"chat", "-config", env.config, env.index}, input)
	if code != 0 {
		t.Fatalf("chat: code %d, stderr %s", code, errOut)
	}
	for _, want := range []string{"Aspirin reduces fever.", "Conversation cleared.", "Ibuprofen treats headaches and swelling."} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_statusMissingIndex(t *testing.T) {
	if code, _, errOut := runApp([]string{"status", filepath.Join(t.TempDir(), "index")}, ""); code != 1 || !strings.Contains(errOut, "index not found") {
		t.Errorf("status: code %d, stderr %q", code, errOut)
	}
}
