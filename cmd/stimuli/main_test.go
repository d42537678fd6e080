package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const contrastDesign = "../../designs/examples/contrast.v1.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resolveSection, resolveSeeds = "", nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseSeeds(t *testing.T) {
	seeds, err := parseSeeds([]string{"section/main=42", "list/contrasts=18446744073709551615"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seeds["section/main"] != 42 || seeds["list/contrasts"] != 18446744073709551615 {
		t.Errorf("unexpected seeds %v", seeds)
	}

	for _, bad := range []string{"main", "=4", "section/main=-1", "section/main=x"} {
		if _, err := parseSeeds([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestResolveCommand(t *testing.T) {
	out, err := execute(t, "resolve", contrastDesign, "--seed", "list/contrasts=3")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	var got resolveOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if got.Seeds["list/contrasts"] != "3" {
		t.Errorf("expected the given seed, got %q", got.Seeds["list/contrasts"])
	}
	if got.Seeds["section/practice"] != "1234" {
		t.Errorf("expected the authored seed, got %q", got.Seeds["section/practice"])
	}
	for _, id := range []string{"practice", "main"} {
		res := got.Sections[id]
		if res == nil || len(res.Trials) != res.Total || res.Total == 0 {
			t.Errorf("expected resolved trials for %s, got %+v", id, res)
		}
	}
}

func TestResolveSameSeedsSameOutput(t *testing.T) {
	first, err := execute(t, "resolve", contrastDesign, "--section", "main", "--seed", "list/contrasts=3")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	var out resolveOutput
	if err := json.Unmarshal([]byte(first), &out); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(out.Sections) != 1 || out.Sections["main"] == nil {
		t.Fatalf("expected only main, got %v", out.Sections)
	}

	args := []string{"resolve", contrastDesign, "--section", "main"}
	for k, v := range out.Seeds {
		args = append(args, "--seed", k+"="+v)
	}
	second, err := execute(t, args...)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if first != second {
		t.Error("expected replaying the printed seeds to reproduce the output")
	}

	if _, err := execute(t, "resolve", contrastDesign, "--section", "nowhere"); err == nil {
		t.Error("expected error for an unknown section")
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", contrastDesign)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), ": ok") {
		t.Errorf("expected ok, got %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	content := `
version: 1
name: bad
frame_rate: 10
first_section: nowhere
sections:
  - id: main
    scenes:
      - id: blank
        duration: {mode: constant, seconds: 0.5}
        objects:
          - id: prompt
            kind: text
            properties: {start: 0, text: wait}
`
	if err := os.WriteFile(bad, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write design: %v", err)
	}
	out, err = execute(t, "validate", bad)
	if err == nil {
		t.Fatal("expected an invalid design")
	}
	if !strings.Contains(out, "nowhere") {
		t.Errorf("expected the problem to name the dangling section, got %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("expected a version")
	}
}
