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
	Token string `yaml:"token"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_TOKEN", "s3cret")
	path := writeFile(t, "name: demo\nport: 9000\ntoken: ${SAMPLE_TOKEN}\n")

	cfg := sample{Port: 1}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "demo" || cfg.Port != 9000 || cfg.Token != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, "name: demo\n")
	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Port)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "port: -1\n")
	cfg := sample{}
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := sample{Port: 1}
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadIfExists(t *testing.T) {
	cfg := sample{Port: 7}
	found, err := LoadIfExists(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	if err != nil || found {
		t.Fatalf("found = %v, err = %v", found, err)
	}
	if cfg.Port != 7 {
		t.Errorf("defaults changed: %+v", cfg)
	}

	bad := sample{}
	if _, err := LoadIfExists(filepath.Join(t.TempDir(), "nope.yaml"), &bad); err == nil {
		t.Error("defaults must still be validated")
	}

	path := writeFile(t, "port: 9\n")
	found, err = LoadIfExists(path, &cfg)
	if err != nil || !found || cfg.Port != 9 {
		t.Errorf("found = %v, err = %v, cfg = %+v", found, err, cfg)
	}
}
