package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestStoreConfig_DurabilityValues(t *testing.T) {
	cfg := StoreConfig{Durability: "buffered"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("buffered durability should pass: %v", err)
	}

	cfg = StoreConfig{Durability: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty durability should default: %v", err)
	}
	if cfg.Durability != "sync" {
		t.Errorf("durability = %q, want sync default", cfg.Durability)
	}

	cfg = StoreConfig{Durability: "eventually"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown durability should fail")
	}
}

func TestPlaybackConfig_SeekPolicy(t *testing.T) {
	cfg := PlaybackConfig{SeekPolicy: "reject"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("reject policy should pass: %v", err)
	}

	cfg = PlaybackConfig{SeekPolicy: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty policy should default: %v", err)
	}
	if cfg.SeekPolicy != "clamp" {
		t.Errorf("policy = %q, want clamp default", cfg.SeekPolicy)
	}

	cfg = PlaybackConfig{SeekPolicy: "teleport"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown policy should fail")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestFullConfig_WorkspaceRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Workspace.Root = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing workspace root should fail")
	}
}
