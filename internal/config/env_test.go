package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	for _, key := range []string{"LPH_RPC_URL", "LPH_OWNER", "LPH_TELEGRAM_TOKEN", "LPH_TELEGRAM_CHAT_ID", "LPH_EMPTY"} {
		unsetEnv(t, key)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "" +
		"# comment\n" +
		"LPH_RPC_URL=https://bsc.example/rpc # primary\n" +
		"export LPH_OWNER=0x00000000000000000000000000000000000000aa\n" +
		"LPH_TELEGRAM_TOKEN=\"123:abc # not a comment\"\n" +
		"LPH_TELEGRAM_CHAT_ID='-100'\n" +
		"LPH_EMPTY=\n" +
		"not a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	want := map[string]string{
		"LPH_RPC_URL":          "https://bsc.example/rpc",
		"LPH_OWNER":            "0x00000000000000000000000000000000000000aa",
		"LPH_TELEGRAM_TOKEN":   "123:abc # not a comment",
		"LPH_TELEGRAM_CHAT_ID": "-100",
		"LPH_EMPTY":            "",
	}
	for key, expected := range want {
		if got := os.Getenv(key); got != expected {
			t.Fatalf("%s expected %q, got %q", key, expected, got)
		}
	}
}

func TestLoadEnvDoesNotOverrideExisting(t *testing.T) {
	t.Setenv("LPH_OWNER", "existing")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LPH_OWNER=other\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("LPH_OWNER"); got != "existing" {
		t.Fatalf("LPH_OWNER expected existing, got %q", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if old, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { _ = os.Setenv(key, old) })
	} else {
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	_ = os.Unsetenv(key)
}
