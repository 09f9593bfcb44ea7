package config

import (
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *memBackend) SetString(key, val string) error { b.strings[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.ints[key] = val; return nil }
func (b *memBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

func TestDefaults(t *testing.T) {
	t.Setenv("LEAVEFLOW_JWT_SECRET", "test-secret")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith = %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Auth.TokenTTLMinutes != 30 {
		t.Errorf("TokenTTLMinutes = %d, want 30", cfg.Auth.TokenTTLMinutes)
	}
	if cfg.LLM.BaseURL == "" || cfg.Log.Level != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestBackendOverridesDefaults(t *testing.T) {
	t.Setenv("LEAVEFLOW_JWT_SECRET", "test-secret")

	b := newMemBackend()
	b.SetInt("server.port", 9090)
	b.SetString("llm.chat_model", "mixtral")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.LLM.ChatModel != "mixtral" {
		t.Errorf("ChatModel = %q", cfg.LLM.ChatModel)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("LEAVEFLOW_JWT_SECRET", "test-secret")
	t.Setenv("LEAVEFLOW_SERVER_PORT", "7070")
	t.Setenv("LEAVEFLOW_LOG_LEVEL", "debug")

	b := newMemBackend()
	b.SetInt("server.port", 9090)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
}

func TestMissingJWTSecret(t *testing.T) {
	t.Setenv("LEAVEFLOW_JWT_SECRET", "")

	_, err := loadWith(newMemBackend())
	if err == nil {
		t.Fatal("loadWith succeeded without a JWT secret")
	}
	if !strings.Contains(err.Error(), "LEAVEFLOW_JWT_SECRET") {
		t.Errorf("error %q does not name the env var", err)
	}
}

func TestSecretsNotSettableViaFile(t *testing.T) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		for _, k := range ValidKeys() {
			if k == s.key {
				t.Errorf("secret key %q listed as settable", k)
			}
		}
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	t.Setenv("LEAVEFLOW_JWT_SECRET", "super-secret")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith = %v", err)
	}
	for _, info := range ShowAll(cfg) {
		if info.Value == "super-secret" {
			t.Errorf("secret leaked through ShowAll: %+v", info)
		}
	}
}
