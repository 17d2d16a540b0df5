package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	core "github.com/jmzkChain/jmzk-sub002/core"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it. The CLI's RunE closures print with fmt.Println
// directly rather than through cmd.OutOrStdout, so this is the only way to
// observe their output from a test.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")

	cmd := snapshotCmd()
	cmd.SetArgs([]string{"export", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}

	out := captureStdout(t, func() {
		cmd := snapshotCmd()
		cmd.SetArgs([]string{"import", path})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("import: %v", err)
		}
	})
	if !strings.Contains(out, "loaded ok") {
		t.Fatalf("got output %q, want it to report a successful load", out)
	}
}

func TestSnapshotExportFromReencodesExisting(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.bin")
	second := filepath.Join(dir, "second.bin")

	cmd := snapshotCmd()
	cmd.SetArgs([]string{"export", first})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("export first: %v", err)
	}

	cmd = snapshotCmd()
	cmd.SetArgs([]string{"export", "--from", first, second})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("export --from: %v", err)
	}

	f, err := os.Open(second)
	if err != nil {
		t.Fatalf("open re-encoded snapshot: %v", err)
	}
	defer f.Close()
	if _, err := core.ReadSnapshot(f); err != nil {
		t.Fatalf("ReadSnapshot on re-encoded file: %v", err)
	}
}

func TestSnapshotDebugWritesJSON(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "snap.bin")
	jsonOut := filepath.Join(dir, "snap.json")

	cmd := snapshotCmd()
	cmd.SetArgs([]string{"export", bin})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("export: %v", err)
	}

	cmd = snapshotCmd()
	cmd.SetArgs([]string{"debug", bin, jsonOut})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("debug: %v", err)
	}
	data, err := os.ReadFile(jsonOut)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected the debug JSON dump to be non-empty")
	}
}

func TestSnapshotImportRejectsMissingFile(t *testing.T) {
	cmd := snapshotCmd()
	cmd.SetArgs([]string{"import", filepath.Join(t.TempDir(), "nope.bin")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error importing a nonexistent snapshot file")
	}
}

func TestKeygenPrintsPrivateAndPublicKey(t *testing.T) {
	out := captureStdout(t, func() {
		cmd := keygenCmd()
		if err := cmd.Execute(); err != nil {
			t.Fatalf("keygen: %v", err)
		}
	})
	if !strings.Contains(out, "private:") || !strings.Contains(out, "public:") {
		t.Fatalf("got output %q, want both private and public key lines", out)
	}
}

func TestLinkEncodeThenDecodeRoundTrip(t *testing.T) {
	priv, err := core.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}

	out := captureStdout(t, func() {
		cmd := linkCmd()
		cmd.SetArgs([]string{
			"encode",
			"--priv", priv.String(),
			"--symbol-id", "7",
			"--max-pay", "1000",
			"--link-id", "00112233-4455-6677-8899-aabbccddeeff",
			"--timestamp", "123456",
		})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("encode: %v", err)
		}
	})
	uri := strings.TrimSpace(out)
	if uri == "" {
		t.Fatal("expected encode to print a link URI")
	}

	decodeOut := captureStdout(t, func() {
		cmd := linkCmd()
		cmd.SetArgs([]string{"decode", uri})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("decode: %v", err)
		}
	})
	if !strings.Contains(decodeOut, "signer:") {
		t.Fatalf("got decode output %q, want a recovered signer line", decodeOut)
	}
	if !strings.Contains(decodeOut, priv.Public().String()) {
		t.Fatalf("got decode output %q, want it to recover the signer %s", decodeOut, priv.Public().String())
	}
}

func TestLinkEncodeRejectsBadLinkID(t *testing.T) {
	priv, err := core.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	captureStdout(t, func() {
		cmd := linkCmd()
		cmd.SetArgs([]string{"encode", "--priv", priv.String(), "--link-id", "not-a-uuid"})
		if err := cmd.Execute(); err == nil {
			t.Fatal("expected an error for a malformed link-id")
		}
	})
}

func TestConfigCmdPrintsResolvedConfig(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	out := captureStdout(t, func() {
		cmd := configCmd()
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("config: %v", err)
		}
	})
	if !strings.Contains(out, "ID:") {
		t.Fatalf("got output %q, want the printed Config struct to include the Chain.ID field", out)
	}
}
