package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/CTAG07/Nepenthes/pkg/script"
	"github.com/google/go-cmp/cmp"
)

// runCLI executes a fresh command tree and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	page := writeTestFile(t, dir, "page.ejs", "<h1><%= title %></h1><% for (var i = 0; i < items.length; i++) { %><%= items[i] %>;<% } %>")
	yamlLocals := writeTestFile(t, dir, "page.yaml", "title: Tom & Jerry\nitems:\n  - 1\n  - two\n")
	jsonLocals := writeTestFile(t, dir, "page.json", `{"title": "<json>", "items": [3]}`)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"YAML locals", []string{"render", page, "--locals", yamlLocals}, "<h1>Tom &amp; Jerry</h1>1;two;"},
		{"JSON locals", []string{"render", page, "-l", jsonLocals}, "<h1>&lt;json&gt;</h1>3;"},
		{"Set overrides file", []string{"render", page, "-l", jsonLocals, "--set", "title=Set"}, "<h1>Set</h1>3;"},
		{"Cache flag", []string{"render", page, "-l", jsonLocals, "--cache"}, "<h1>&lt;json&gt;</h1>3;"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stdout, stderr, err := runCLI(t, tc.args...)
			if err != nil {
				t.Fatalf("render failed: %v (stderr: %s)", err, stderr)
			}
			if diff := cmp.Diff(tc.want, stdout); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderCommandOut(t *testing.T) {
	dir := t.TempDir()
	page := writeTestFile(t, dir, "page.ejs", "Hi <%= name %>")
	out := filepath.Join(dir, "page.html")

	stdout, _, err := runCLI(t, "render", page, "--set", "name=Ann", "--out", out)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if string(got) != "Hi Ann" {
		t.Errorf("output file = %q", got)
	}
}

func TestRenderCommandDebug(t *testing.T) {
	dir := t.TempDir()
	page := writeTestFile(t, dir, "page.ejs", "<%= 1 + 1 %>")

	stdout, stderr, err := runCLI(t, "render", page, "--debug", "-v")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if stdout != "2" {
		t.Errorf("stdout = %q, want %q", stdout, "2")
	}
	if !strings.Contains(stderr, "Generated template code") {
		t.Errorf("stderr does not contain the generated code log: %q", stderr)
	}
}

func TestRenderCommandErrors(t *testing.T) {
	dir := t.TempDir()
	page := writeTestFile(t, dir, "page.ejs", "<%= missing %>")
	loop := writeTestFile(t, dir, "loop.ejs", "<% while (true) { } %>")
	broken := writeTestFile(t, dir, "broken.ejs", "<%= oops")
	badLocals := writeTestFile(t, dir, "bad.json", "{")

	tests := []struct {
		name   string
		args   []string
		target error
	}{
		{"Undefined variable", []string{"render", page}, script.ErrUndefined},
		{"Iteration limit", []string{"render", loop, "--max-iterations", "10"}, script.ErrIterationLimit},
		{"Unterminated tag", []string{"render", broken}, ejs.ErrUnterminatedTag},
		{"Missing file", []string{"render", filepath.Join(dir, "nope.ejs")}, os.ErrNotExist},
		{"Bad locals", []string{"render", page, "--locals", badLocals}, nil},
		{"Bad set", []string{"render", page, "--set", "novalue"}, nil},
		{"No arguments", []string{"render"}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := runCLI(t, tc.args...)
			if err == nil {
				t.Fatal("command succeeded, want error")
			}
			if tc.target != nil && !errors.Is(err, tc.target) {
				t.Errorf("error = %v, want %v", err, tc.target)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	page := writeTestFile(t, dir, "page.ejs", "Hi <%= name %>!")

	stdout, _, err := runCLI(t, "parse", page)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want, err := ejs.Parse("Hi <%= name %>!")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff(want+"\n", stdout); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	broken := writeTestFile(t, dir, "broken.ejs", "a <% b")
	if _, _, err = runCLI(t, "parse", broken); !errors.Is(err, ejs.ErrUnterminatedTag) {
		t.Errorf("error = %v, want %v", err, ejs.ErrUnterminatedTag)
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, "Template language: "+ejs.Version) {
		t.Errorf("version output = %q", stdout)
	}
}
