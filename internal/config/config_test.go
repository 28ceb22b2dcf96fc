package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_ENV", "production")

	cfg := Load()
	if cfg.APIBaseURL != "http://localhost:3001" || cfg.SocketURL != cfg.APIBaseURL {
		t.Fatalf("urls = %q %q", cfg.APIBaseURL, cfg.SocketURL)
	}
	if cfg.SessionExpiry != 5*time.Minute {
		t.Fatalf("SessionExpiry = %v", cfg.SessionExpiry)
	}
	if cfg.ReconnectAttempts != 5 || cfg.ReconnectDelay != time.Second || cfg.ReconnectDelayMax != 5*time.Second {
		t.Fatalf("reconnect = %d %v %v", cfg.ReconnectAttempts, cfg.ReconnectDelay, cfg.ReconnectDelayMax)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("RedisURL = %q, want empty", cfg.RedisURL)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("APP_ENV", "production")
	path := filepath.Join(dir, "client.yaml")
	yml := "api_base_url: http://api.local/\nsession_expiry_seconds: 60\nreconnect_attempts: 3\nusername: Zeno\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RECONNECT_ATTEMPTS", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.local, http://b.local,")

	cfg := Load()
	if cfg.APIBaseURL != "http://api.local" {
		t.Fatalf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.SessionExpiry != time.Minute || cfg.Username != "Zeno" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.ReconnectAttempts != 7 {
		t.Fatalf("env did not override yaml: %d", cfg.ReconnectAttempts)
	}
	if got := cfg.AllowedOrigins(); len(got) != 2 || got[1] != "http://b.local" {
		t.Fatalf("AllowedOrigins = %v", got)
	}
}

func TestLoad_BadYAMLFallsBack(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("APP_ENV", "production")
	path := filepath.Join(dir, "client.yaml")
	if err := os.WriteFile(path, []byte("request_timeout: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	if cfg := Load(); cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("APP_ENV", "")
	t.Setenv("CONFIG_PATH", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SOCKET_URL=\"ws://push.local\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SOCKET_URL", "")
	os.Unsetenv("SOCKET_URL")

	if cfg := Load(); cfg.SocketURL != "ws://push.local" {
		t.Fatalf("SocketURL = %q", cfg.SocketURL)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
