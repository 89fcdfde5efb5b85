package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFacts(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "kb.facts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const taxonomy = "is_a(dog, mammal)\nis_a(mammal, animal)\n"

func TestInferEmitsFacts(t *testing.T) {
	facts := writeFacts(t, t.TempDir(), taxonomy)
	out, err := run(t, "infer", "--facts", facts, "--emit")
	require.NoError(t, err)
	assert.Contains(t, out, "status: converged")
	assert.Contains(t, out, "transitive_is_a")
	assert.Contains(t, out, "is_a(dog, animal) 0.9\n")
}

func TestInferJSON(t *testing.T) {
	facts := writeFacts(t, t.TempDir(), taxonomy)
	out, err := run(t, "infer", "--facts", facts, "--json")
	require.NoError(t, err)

	var res struct {
		Status string `json:"status"`
		Facts  []any  `json:"facts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "converged", res.Status)
	assert.Len(t, res.Facts, 1)
}

func TestAskAndNoInfer(t *testing.T) {
	facts := writeFacts(t, t.TempDir(), taxonomy)

	out, err := run(t, "ask", "dog", "is_a", "animal", "--facts", facts)
	require.NoError(t, err)
	assert.Contains(t, out, "yes (inferred")

	out, err = run(t, "ask", "dog", "IS_A", "animal", "--facts", facts, "--no-infer")
	require.NoError(t, err)
	assert.Contains(t, out, "yes (path")

	out, err = run(t, "ask", "animal", "is_a", "dog", "--facts", facts)
	require.NoError(t, err)
	assert.Equal(t, "no\n", out)

	_, err = run(t, "ask", "dog", "likes", "animal", "--facts", facts)
	assert.Error(t, err)
	_, err = run(t, "ask", "wolf", "is_a", "animal", "--facts", facts)
	assert.Error(t, err)
}

func TestCheckFailFlag(t *testing.T) {
	facts := writeFacts(t, t.TempDir(), "opposite_of(hot, cold)\nsimilar_to(hot, cold) 0.5\n")

	out, err := run(t, "check", "--facts", facts)
	require.NoError(t, err)
	assert.Contains(t, out, "mutual_exclusion")

	_, err = run(t, "check", "--facts", facts, "--fail")
	assert.ErrorIs(t, err, errContradictions)
}

func TestCheckResolvesWithConfiguredPolicy(t *testing.T) {
	dir := t.TempDir()
	facts := writeFacts(t, dir, "is_a(a, c)\nis_a(c, b)\nis_a(a, b) 0.3\n")
	cfgPath := filepath.Join(dir, "reasongraph.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("detector:\n  policy: average\n"), 0o644))

	out, err := run(t, "check", "--config", cfgPath, "--facts", facts)
	require.NoError(t, err)
	assert.Contains(t, out, "confidence_conflict")
	assert.Contains(t, out, "resolved 1 conflicts (average)")
}

func TestPathClosureExplain(t *testing.T) {
	facts := writeFacts(t, t.TempDir(), taxonomy+"has_property(mammal, fur) 0.8\n")

	out, err := run(t, "path", "dog", "animal", "--facts", facts, "--no-infer")
	require.NoError(t, err)
	assert.Contains(t, out, "dog -IS_A-> mammal -IS_A-> animal")

	out, err = run(t, "path", "animal", "dog", "--facts", facts, "--no-infer", "--direction", "in")
	require.NoError(t, err)
	assert.Contains(t, out, "animal <-IS_A- mammal <-IS_A- dog")

	out, err = run(t, "path", "fur", "dog", "--facts", facts, "--no-infer")
	require.NoError(t, err)
	assert.Equal(t, "no path\n", out)

	out, err = run(t, "closure", "dog", "is_a", "--facts", facts)
	require.NoError(t, err)
	assert.Contains(t, out, "mammal")
	assert.Contains(t, out, "animal")

	out, err = run(t, "explain", "dog", "has_property", "fur", "--facts", facts)
	require.NoError(t, err)
	assert.Contains(t, out, "via inherit_property_is_a")
	assert.Contains(t, out, "<- IS_A(dog, mammal) 1 [asserted]")

	_, err = run(t, "explain", "fur", "is_a", "dog", "--facts", facts)
	assert.Error(t, err)
}

func TestSnapshotAcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	facts := writeFacts(t, dir, taxonomy)
	cfgPath := filepath.Join(dir, "reasongraph.yaml")
	cfg := "store:\n  driver: sqlite\n  path: " + filepath.Join(dir, "kb.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	_, err := run(t, "infer", "--config", cfgPath, "--facts", facts, "--save")
	require.NoError(t, err)

	out, err := run(t, "ask", "dog", "is_a", "animal", "--config", cfgPath, "--from-snapshot", "--no-infer")
	require.NoError(t, err)
	assert.Contains(t, out, "yes (inferred")
}

func TestExport(t *testing.T) {
	facts := writeFacts(t, t.TempDir(), taxonomy)
	out, err := run(t, "export", "--facts", facts)
	require.NoError(t, err)
	assert.Equal(t, "is_a(dog, mammal) 1\nis_a(mammal, animal) 1\n", out)

	out, err = run(t, "export", "--facts", facts, "--inferred")
	require.NoError(t, err)
	assert.Contains(t, out, "is_a(dog, animal) 0.9\n")
}

func TestDemo(t *testing.T) {
	out, err := run(t, "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "status: converged")
	assert.Contains(t, out, "mutual_exclusion")
	assert.Contains(t, out, "living thing")
	assert.Contains(t, out, "rain -CAUSES->")
}

func TestBadLogSettings(t *testing.T) {
	_, err := run(t, "infer", "--log-level", "loud")
	assert.Error(t, err)
	_, err = run(t, "infer", "--log-format", "xml")
	assert.Error(t, err)
}
