package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rickgao/tradeline/internal/config"
)

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if !strings.HasPrefix(out.String(), "tradeline dev") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPassword(t *testing.T) {
	t.Setenv(passwordEnv, "")
	if _, err := password(""); err == nil {
		t.Error("expected error with no password")
	}

	t.Setenv(passwordEnv, "from-env")
	if got, _ := password(""); got != "from-env" {
		t.Errorf("password() = %q, want from-env", got)
	}
	if got, _ := password("from-flag"); got != "from-flag" {
		t.Errorf("password() = %q, want from-flag", got)
	}
}

func TestSetup_MissingConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	a := &app{
		cfgFile:  filepath.Join(dir, "missing.yaml"),
		envFiles: []string{filepath.Join(dir, "missing.env")},
	}
	if err := a.setup(false); err != nil {
		t.Fatalf("setup() = %v", err)
	}
	defer a.logCloser.Close()

	if a.cfg.API.BaseURL != config.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", a.cfg.API.BaseURL)
	}
	if a.logger == nil {
		t.Error("logger not built")
	}
}
