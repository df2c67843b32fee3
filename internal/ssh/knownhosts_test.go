package ssh

import (
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/die-net/socksrelay/internal/testutil"
)

func TestNewHostKeyCallback(t *testing.T) {
	t.Parallel()

	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 22}

	t.Run("empty path accepts any key", func(t *testing.T) {
		t.Parallel()

		cb, err := NewHostKeyCallback("")
		if err != nil {
			t.Fatal(err)
		}
		if err := cb("example.com:22", addr, testutil.NewSSHSigner(t).PublicKey()); err != nil {
			t.Fatalf("expected any key to be accepted: %v", err)
		}
	})

	t.Run("creates directory and file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "subdir", "known_hosts")
		if _, err := NewHostKeyCallback(path); err != nil {
			t.Fatal(err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("file not created: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Fatalf("file mode %o want 600", info.Mode().Perm())
		}
	})

	t.Run("trusts and records unknown host", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		cb, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}

		key := testutil.NewSSHSigner(t).PublicKey()
		if err := cb("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("unknown host rejected: %v", err)
		}

		data, err := os.ReadFile(path) //nolint:gosec // Test path from t.TempDir().
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "192.0.2.1") {
			t.Fatalf("known_hosts does not list the host: %q", data)
		}

		reloaded, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := reloaded("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("recorded host rejected: %v", err)
		}
	})

	t.Run("rejects changed key", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		cb, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := cb("192.0.2.1:22", addr, testutil.NewSSHSigner(t).PublicKey()); err != nil {
			t.Fatal(err)
		}

		reloaded, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}
		err = reloaded("192.0.2.1:22", addr, testutil.NewSSHSigner(t).PublicKey())
		if err == nil || !strings.Contains(err.Error(), "mismatch") {
			t.Fatalf("got %v, want host key mismatch", err)
		}
	})

	t.Run("reads existing file", func(t *testing.T) {
		t.Parallel()

		key := testutil.NewSSHSigner(t).PublicKey()
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := "192.0.2.1 " + key.Type() + " " + base64.StdEncoding.EncodeToString(key.Marshal()) + "\n"
		if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
			t.Fatal(err)
		}

		cb, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := cb("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("existing entry rejected: %v", err)
		}
	})
}
