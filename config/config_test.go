package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestLoadDefaults(t *testing.T) {
	cfg, path, err := Load(LoadOptions{SearchPaths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "" {
		t.Errorf("Load() read %s, want no file", path)
	}
	if *cfg != DefaultConfig() {
		t.Errorf("Load() = %+v, want %+v", *cfg, DefaultConfig())
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ConfigFileName+".yaml")
	data := "home: /opt/xmlharness\nask: false\ntest: ExpressionSimple\ndebounce: 2s\n"
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("XMLHARNESS_TEST", "Validate")
	t.Setenv("XMLHARNESS_LOG_LEVEL", "debug")

	cfg, path, err := Load(LoadOptions{SearchPaths: []string{dir}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != file {
		t.Errorf("Load() read %s, want %s", path, file)
	}
	want := Config{Home: "/opt/xmlharness", Test: "Validate", Ask: false, LogLevel: "debug", Debounce: 2 * time.Second}
	if *cfg != want {
		t.Errorf("Load() = %+v, want %+v", *cfg, want)
	}
	if lvl, err := cfg.Level(); err != nil || lvl != log.DebugLevel {
		t.Errorf("Level() = %v, %v", lvl, err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Error("Load() of a missing explicit file succeeded")
	}

	t.Setenv("XMLHARNESS_LOG_LEVEL", "loud")
	if _, _, err := Load(LoadOptions{SearchPaths: []string{t.TempDir()}}); err == nil {
		t.Error("Load() with an invalid log level succeeded")
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if dir != filepath.Join("/xdg", AppName) {
		t.Errorf("ConfigDir() = %s", dir)
	}
}
