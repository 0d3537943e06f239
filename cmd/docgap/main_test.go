package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/docgap"
	"github.com/jward/docgap/internal/config"
	"github.com/jward/docgap/internal/model"
)

const calcSource = `"""Math helpers for the test suite."""

def add(a, b):
    return a + b

def subtract(a, b):
    """Subtract b from a.

    Args:
        a: The minuend.
        b: The subtrahend.
    """
    return a - b
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// resetFlags restores the package flag variables between command runs.
func resetFlags() {
	flagDB = ""
	flagConfig = ""
	flagFormat = "json"
	flagVerbose = false
	flagMinSeverity = ""
	flagStyle = ""
	flagNoIncremental = false
	flagGenerate = false
	flagWrite = false
	flagParallel = 0
	flagGit = false
	flagFailOn = ""
	flagBuiltinRules = false
	flagHistoryLimit = 20
	flagTrendDays = 0
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

type analyzeOutput struct {
	Command string `json:"command"`
	Results struct {
		Report struct {
			Gaps  []model.Gap  `json:"gaps"`
			Stats docgap.Stats `json:"stats"`
		} `json:"report"`
		Applied []docgap.AppliedFile `json:"applied"`
	} `json:"results"`
}

func decodeAnalyze(t *testing.T, out string) analyzeOutput {
	t.Helper()
	var got analyzeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	return got
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.py")
	writeFile(t, file, "x = 1\n")

	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestResolveDBPath(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	assert.Equal(t, filepath.Join("/repo", ".docgap", "cache.db"), resolveDBPath("/repo"))

	flagDB = "custom.db"
	assert.Equal(t, filepath.Join("/repo", "custom.db"), resolveDBPath("/repo"))

	flagDB = "/abs/cache.db"
	assert.Equal(t, "/abs/cache.db", resolveDBPath("/repo"))
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{"json", "text", "table"} {
		assert.NoError(t, validateFormat(f))
	}
	assert.ErrorContains(t, validateFormat("yaml"), `invalid format "yaml"`)
}

func TestCoverageBar(t *testing.T) {
	t.Parallel()
	assert.Equal(t, strings.Repeat(".", 20), coverageBar(0))
	assert.Equal(t, strings.Repeat("#", 10)+strings.Repeat(".", 10), coverageBar(50))
	assert.Equal(t, strings.Repeat("#", 20), coverageBar(100))
	assert.Equal(t, strings.Repeat("#", 20), coverageBar(140))
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func TestLoadConfig_DefaultsWithoutProjectFile(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	root := t.TempDir()

	cfg, err := loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Include, cfg.Include)
}

func TestLoadConfig_ProjectFileAndRulesDir(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".docgap.yaml"), "min_severity: high\nrules_dir: rules\n")

	cfg, err := loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, "high", cfg.MinSeverity)
	assert.Equal(t, filepath.Join(root, "rules"), cfg.RulesDir)
}

func TestLoadConfig_FallsBackToRepoRoot(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	writeFile(t, filepath.Join(repo, ".docgap.toml"), "min_severity = \"medium\"\n")
	sub := filepath.Join(repo, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	cfg, err := loadConfig(sub)
	require.NoError(t, err)
	assert.Equal(t, "medium", cfg.MinSeverity)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	// Register restoration, then make the variable absent.
	t.Setenv(config.EnvModel, "placeholder")
	require.NoError(t, os.Unsetenv(config.EnvModel))

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), config.EnvModel+"=from-dotenv\n")

	cfg, err := loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Generation.Model)
}

func TestLoadConfig_EnvironmentWinsOverDotEnv(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	t.Setenv(config.EnvModel, "from-env")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), config.EnvModel+"=from-dotenv\n")

	cfg, err := loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Generation.Model)
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestAnalyze_JSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "calc.py"), calcSource)

	out, err := execute(t, "analyze", root, "--format", "json")
	require.NoError(t, err)

	got := decodeAnalyze(t, out)
	assert.Equal(t, "analyze", got.Command)
	assert.Equal(t, 1, got.Results.Report.Stats.Files)
	require.NotEmpty(t, got.Results.Report.Gaps)

	var types []model.GapType
	for _, g := range got.Results.Report.Gaps {
		if g.Entity.QualifiedName == "calc.add" {
			types = append(types, g.Type)
		}
	}
	assert.Equal(t, []model.GapType{model.GapMissingDocstring}, types)

	assert.FileExists(t, filepath.Join(root, ".docgap", "cache.db"))
}

func TestAnalyze_SecondRunServedFromCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "calc.py"), calcSource)

	_, err := execute(t, "analyze", root)
	require.NoError(t, err)
	out, err := execute(t, "analyze", root)
	require.NoError(t, err)

	stats := decodeAnalyze(t, out).Results.Report.Stats
	assert.Equal(t, 1, stats.Cached)
	assert.Equal(t, 0, stats.Analyzed)
}

func TestAnalyze_TextAndTable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "calc.py"), calcSource)

	out, err := execute(t, "analyze", root, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "calc.py:3")
	assert.Contains(t, out, "missing_docstring")
	assert.Contains(t, out, "Files: 1 (analyzed 1")

	out, err = execute(t, "analyze", root, "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "missing_docstring")
	assert.Contains(t, out, "Summary")
}

func TestAnalyze_FailOn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "calc.py"), calcSource)

	out, err := execute(t, "analyze", root, "--fail-on", "critical")
	require.ErrorIs(t, err, errGapsFound)
	assert.NotEmpty(t, out, "the report is still written")

	_, err = execute(t, "analyze", root, "--fail-on", "urgent")
	assert.ErrorContains(t, err, "--fail-on")
}

func TestAnalyze_BuiltinRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.py"), "def note():\n    \"\"\"Write a note. TODO: describe storage.\"\"\"\n    return 1\n")

	out, err := execute(t, "analyze", root)
	require.NoError(t, err)
	for _, g := range decodeAnalyze(t, out).Results.Report.Gaps {
		assert.NotEqual(t, model.GapType("todo_in_docs"), g.Type)
	}

	out, err = execute(t, "analyze", root, "--builtin-rules")
	require.NoError(t, err)
	var found bool
	for _, g := range decodeAnalyze(t, out).Results.Report.Gaps {
		if g.Type == "todo_in_docs" && g.Entity.QualifiedName == "notes.note" {
			found = true
		}
	}
	assert.True(t, found, "built-in todo rule should flag notes.note")
}

func TestAnalyze_InvalidFormat(t *testing.T) {
	_, err := execute(t, "analyze", t.TempDir(), "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestAnalyze_InvalidConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".docgap.yaml"), "min_severity: urgent\n")

	_, err := execute(t, "analyze", root)
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "min_severity", cfgErr.Field)
}

func TestAnalyze_GenerateAndWrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": "DOCUMENTATION:\nAdd two numbers.\n\nREASONING:\nNew.\n\nCONFIDENCE:\n0.9",
				},
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	t.Setenv(config.EnvBaseURL, srv.URL+"/v1/")
	t.Setenv(config.EnvAPIKey, "test")
	t.Setenv(config.EnvModel, "test-model")

	root := t.TempDir()
	path := filepath.Join(root, "calc.py")
	writeFile(t, path, "\"\"\"Math helpers for the test suite.\"\"\"\n\ndef add(a, b):\n    return a + b\n")

	out, err := execute(t, "analyze", root, "--write")
	require.NoError(t, err)

	got := decodeAnalyze(t, out)
	assert.Equal(t, 1, got.Results.Report.Stats.Generated)
	require.Len(t, got.Results.Applied, 1)
	assert.Equal(t, "calc.py", got.Results.Applied[0].Path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"\"\"Math helpers for the test suite.\"\"\"\n\ndef add(a, b):\n    \"\"\"Add two numbers.\"\"\"\n    return a + b\n", string(written))
}

func TestHistory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "calc.py"), calcSource)

	for range 2 {
		_, err := execute(t, "analyze", root)
		require.NoError(t, err)
	}

	out, err := execute(t, "history", root, "--format", "json")
	require.NoError(t, err)
	var runs struct {
		Results []CLIRun `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs.Results, 2)
	assert.Equal(t, 3, runs.Results[0].Entities)
	assert.Equal(t, 2, runs.Results[0].Documented)
	assert.NotEmpty(t, runs.Results[0].GapCounts)

	out, err = execute(t, "history", root, "--limit", "1", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "\n")+1, "header and one run")

	out, err = execute(t, "history", root, "--trend", "7", "--format", "json")
	require.NoError(t, err)
	var trend struct {
		Results []CLICoveragePoint `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &trend))
	require.Len(t, trend.Results, 2)
	assert.InDelta(t, 66.67, trend.Results[1].Coverage, 0.01)
}

func TestCacheCommands(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "calc.py")
	writeFile(t, path, calcSource)
	_, err := execute(t, "analyze", root)
	require.NoError(t, err)

	out, err := execute(t, "cache", "stats", root, "--format", "json")
	require.NoError(t, err)
	var stats struct {
		Results struct {
			Files int `json:"files"`
			Runs  int `json:"runs"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Results.Files)
	assert.Equal(t, 1, stats.Results.Runs)

	require.NoError(t, os.Remove(path))
	out, err = execute(t, "cache", "prune", root, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 cache records")

	out, err = execute(t, "cache", "clear", root, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")
}
