package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSecrets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marzban-password"), []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WARDEN_SECRET_BOT_TOKEN", "123:abc")

	r, err := NewSecretResolver(SecretsConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewSecretResolver failed: %v", err)
	}

	cfg := validConfig()
	cfg.Marzban.Password = "${secret:marzban-password}"
	cfg.Notify.Telegram.BotToken = "${secret:bot-token}"
	cfg.Server.APIToken = "literal-token"

	if err := cfg.ResolveSecrets(context.Background(), r); err != nil {
		t.Fatalf("ResolveSecrets failed: %v", err)
	}
	if cfg.Marzban.Password != "from-file" {
		t.Errorf("Expected password from file, got %q", cfg.Marzban.Password)
	}
	if cfg.Notify.Telegram.BotToken != "123:abc" {
		t.Errorf("Expected bot token from env, got %q", cfg.Notify.Telegram.BotToken)
	}
	if cfg.Server.APIToken != "literal-token" {
		t.Errorf("Expected literal value unchanged, got %q", cfg.Server.APIToken)
	}
}

func TestResolveSecrets_Unresolved(t *testing.T) {
	r, err := NewSecretResolver(SecretsConfig{})
	if err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	cfg.Marzban.Password = "${secret:nope-1}"
	cfg.Notify.Email.Password = "${secret:nope-2}"

	err = cfg.ResolveSecrets(context.Background(), r)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 2 {
		t.Fatalf("Expected 2 field errors, got %d", len(verr.Errors))
	}
	if verr.Errors[0].Field != "marzban.password" || verr.Errors[1].Field != "notify.email.password" {
		t.Errorf("Unexpected fields %+v", verr.Errors)
	}
	if cfg.Marzban.Password != "${secret:nope-1}" {
		t.Error("Expected unresolved field left unchanged")
	}
}

func TestNewSecretResolver_BadDir(t *testing.T) {
	if _, err := NewSecretResolver(SecretsConfig{Dir: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("Expected error for missing secrets directory")
	}
}
