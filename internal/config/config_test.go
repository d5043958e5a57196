package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearAgendaEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "AGENDA_") {
			t.Setenv(strings.SplitN(e, "=", 2)[0], "")
		}
	}
}

func TestLoadRequiresAPIToken(t *testing.T) {
	clearAgendaEnv(t)

	_, err := loadWith(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("Load succeeded without an API token")
	}
	if !strings.Contains(err.Error(), "API token") {
		t.Errorf("error %q does not mention the API token", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAgendaEnv(t)
	t.Setenv("AGENDA_API_TOKEN", "secret")

	cfg, err := loadWith(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("default port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Pool.Size != 8 {
		t.Errorf("default pool size = %d, want 8", cfg.Pool.Size)
	}
	if cfg.Pool.AcquireTimeout != 5*time.Second {
		t.Errorf("default acquire timeout = %v, want 5s", cfg.Pool.AcquireTimeout)
	}
	if cfg.Server.APIToken != "secret" {
		t.Errorf("token = %q", cfg.Server.APIToken)
	}
}

func TestLoadFileValues(t *testing.T) {
	clearAgendaEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"port": 9000,
		"api_token": "file-token",
		"pool_size": 2,
		"pool_acquire_timeout": "250ms",
		"embedding_model": "custom-embed"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadWith(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.APIToken != "file-token" {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if cfg.Pool.Size != 2 || cfg.Pool.AcquireTimeout != 250*time.Millisecond {
		t.Errorf("pool config = %+v", cfg.Pool)
	}
	if cfg.Embedding.Model != "custom-embed" {
		t.Errorf("embedding model = %q", cfg.Embedding.Model)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearAgendaEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"api_token": "file-token", "port": 9000}`), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("AGENDA_API_TOKEN", "env-token")
	t.Setenv("AGENDA_PORT", "9100")

	cfg, err := loadWith(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.APIToken != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.Server.APIToken)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
}

func TestLoadRejectsBadPoolSize(t *testing.T) {
	clearAgendaEnv(t)
	t.Setenv("AGENDA_API_TOKEN", "secret")
	t.Setenv("AGENDA_POOL_SIZE", "-1")

	_, err := loadWith(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "pool_size") {
		t.Errorf("error = %v, want pool_size complaint", err)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	clearAgendaEnv(t)
	t.Setenv("AGENDA_API_TOKEN", "secret")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := loadWith(path); err == nil {
		t.Error("Load accepted a malformed config file")
	}
}
