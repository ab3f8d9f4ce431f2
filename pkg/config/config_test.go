package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	s.valid = true
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("PLEDGE_TEST_NAME", "pledge")

	var s sample
	if err := Parse([]byte("name: ${PLEDGE_TEST_NAME}\nport: 8080\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "pledge" || s.Port != 8080 {
		t.Errorf("parsed = %+v", s)
	}
	if !s.valid {
		t.Error("Validate was not called")
	}
}

func TestParseValidationError(t *testing.T) {
	var s sample
	err := Parse([]byte("name: x\nport: 0\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestParseMalformed(t *testing.T) {
	var s sample
	if err := Parse([]byte("port: [oops"), &s); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.yaml", "port: 9090\n")

	s := sample{Name: "default"}
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || s.Port != 9090 {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaultsFallsBack(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "default.yaml", "port: 7070\n")

	var s sample
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), def, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 7070 {
		t.Errorf("port = %d, want 7070", s.Port)
	}

	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), "", &s); err == nil {
		t.Error("expected error without a default file")
	}
}
