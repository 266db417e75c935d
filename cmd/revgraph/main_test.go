package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore/sqlstore"
	"go.skia.org/revgraph/go/util"
)

// newRepo creates a sqlite store holding A; B and C on top of A; and D
// merging C into B. It returns the path of a config file for it.
func newRepo(t *testing.T) string {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "revs.db")
	s, err := sqlstore.Open(ctx, dbPath, 0)
	require.NoError(t, err)
	for _, r := range []struct {
		id      revision.ID
		parents []revision.ID
	}{
		{"A", nil},
		{"B", []revision.ID{"A"}},
		{"C", []revision.ID{"A"}},
		{"D", []revision.ID{"B", "C"}},
	} {
		require.NoError(t, s.AddRevision(ctx, &revision.Revision{
			ID:        r.id,
			ParentIDs: r.parents,
			Committer: "Test Committer <test@example.com>",
			Message:   "message for " + string(r.id),
			Timestamp: 1700000000,
		}))
	}
	require.NoError(t, s.Close())

	return writeConfig(t, dir, "config.json5", `{
  store: {kind: "sqlite", path: "`+dbPath+`"},
  branch: {name: "trunk", tip: "D", calculate_revnos: true},
}`)
}

func writeConfig(t *testing.T, dir, name, contents string) string {
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}

func execute(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestLog_Line(t *testing.T) {
	cfg := newRepo(t)
	stdout, stderr, code := execute("log", "--config", cfg, "--format", "line")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, `3: Test Committer 2023-11-14 [merge] message for D
2: Test Committer 2023-11-14 message for B
1: Test Committer 2023-11-14 message for A
Use --include-merged or -n0 to see merged revisions.
`, stdout)
	assert.Equal(t, "Shown 3 revisions.\n", stderr)
}

func TestLog_IncludeMerged(t *testing.T) {
	cfg := newRepo(t)
	stdout, _, code := execute("log", "--config", cfg, "--format", "line", "--include-merged")
	require.Equal(t, 0, code)
	assert.Equal(t, `3: Test Committer 2023-11-14 [merge] message for D
  1.1.1: Test Committer 2023-11-14 message for C
2: Test Committer 2023-11-14 message for B
1: Test Committer 2023-11-14 message for A
`, stdout)
}

func TestLog_RangeAndLimit(t *testing.T) {
	cfg := newRepo(t)
	stdout, _, code := execute("log", "--config", cfg, "--format", "line", "-r", "1..2")
	require.Equal(t, 0, code)
	assert.Equal(t, `2: Test Committer 2023-11-14 message for B
1: Test Committer 2023-11-14 message for A
`, stdout)

	stdout, _, code = execute("log", "--config", cfg, "--format", "line", "-l", "1", "--match-message", "for D")
	require.Equal(t, 0, code)
	assert.Equal(t, `3: Test Committer 2023-11-14 [merge] message for D
Use --include-merged or -n0 to see merged revisions.
`, stdout)

	// Asking for levels explicitly drops the advice.
	stdout, _, code = execute("log", "--config", cfg, "--format", "line", "-l", "1", "-n", "1")
	require.Equal(t, 0, code)
	assert.Equal(t, "3: Test Committer 2023-11-14 [merge] message for D\n", stdout)
}

func TestLog_Errors(t *testing.T) {
	cfg := newRepo(t)
	_, stderr, code := execute("log", "--config", cfg, "-r", "9")
	assert.Equal(t, exitCodeError, code)
	assert.True(t, strings.HasPrefix(stderr, "revgraph: "), stderr)

	_, _, code = execute("log", "--config", cfg, "--format", "nope")
	assert.Equal(t, exitCodeError, code)

	_, stderr, code = execute("log", "--config", cfg, "--show-signature")
	assert.Equal(t, exitCodeError, code)
	assert.Contains(t, stderr, "keyring")

	_, _, code = execute("log")
	assert.Equal(t, exitCodeError, code)
}

func TestLCA(t *testing.T) {
	cfg := newRepo(t)
	stdout, _, code := execute("lca", "--config", cfg, "revid:B", "1.1.1")
	require.Equal(t, 0, code)
	assert.Equal(t, "A\n", stdout)

	_, _, code = execute("lca", "--config", cfg, "B")
	assert.Equal(t, exitCodeError, code)
}

func TestCheck(t *testing.T) {
	cfg := newRepo(t)
	stdout, stderr, code := execute("check", "--config", cfg, "--branch")
	require.Equal(t, 0, code, stderr)
	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	assert.Contains(t, lines, "     4 revisions")
	assert.Contains(t, lines, "     0 ghost revisions")
	assert.Contains(t, lines, "     4 revisions are missing inventory_sha1")
	assert.NotContains(t, lines, "trunk:")
	assert.True(t, strings.HasPrefix(stderr, "Checked 4 revisions in "), stderr)
}

func TestCheck_ReportToFile(t *testing.T) {
	cfg := newRepo(t)
	report := filepath.Join(t.TempDir(), "report.txt")
	stdout, stderr, code := execute("check", "--config", cfg, "--report", report)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)
	b, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(b), "     4 revisions\n")
	assert.True(t, strings.HasPrefix(stderr, "Checked 4 revisions in "), stderr)

	_, stderr, code = execute("check", "--config", cfg, "--report", filepath.Join(t.TempDir(), "missing", "report.txt"))
	assert.Equal(t, exitCodeError, code)
	assert.Contains(t, stderr, "writing check report")
}

func TestCheck_WrongRevno(t *testing.T) {
	cfg := newRepo(t)
	// Later config files override earlier ones.
	override := writeConfig(t, t.TempDir(), "override.json5", `{branch: {name: "trunk", tip: "D", revno: 5}}`)
	stdout, _, code := execute("check", "--config", cfg, "--config", override, "--branch")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "trunk:\n      revno does not match len(mainline) 5 != 3\n")
}

func TestConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	noTip := writeConfig(t, dir, "a.json5", `{store: {kind: "sqlite", path: "x.db"}, branch: {name: "trunk"}}`)
	_, err := loadConfig([]string{noTip})
	require.Error(t, err)

	badKind := writeConfig(t, dir, "b.json5", `{store: {kind: "svn", path: "x"}, branch: {name: "trunk", tip: "A"}}`)
	_, err = loadConfig([]string{badKind})
	require.Error(t, err)

	noName := writeConfig(t, dir, "c.json5", `{store: {kind: "git", path: "x"}, branch: {}}`)
	_, err = loadConfig([]string{noName})
	require.Error(t, err)
}

func writeArmored(t *testing.T, path, blockType string, write func(w io.Writer) error) {
	require.NoError(t, util.WithWriteFile(path, func(f io.Writer) error {
		w, err := armor.Encode(f, blockType, nil)
		if err != nil {
			return err
		}
		if err := write(w); err != nil {
			return err
		}
		return w.Close()
	}))
}

func TestSignMissing_ThenShowSignatures(t *testing.T) {
	cfg := newRepo(t)
	dir := t.TempDir()
	e, err := openpgp.NewEntity("Signer", "", "signer@example.com", &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)
	pub := filepath.Join(dir, "pubring.asc")
	priv := filepath.Join(dir, "secret.asc")
	writeArmored(t, pub, openpgp.PublicKeyType, e.Serialize)
	writeArmored(t, priv, openpgp.PrivateKeyType, func(w io.Writer) error { return e.SerializePrivate(w, nil) })

	stdout, stderr, code := execute("sign-missing", "--config", cfg, "--key", priv, "--dry-run")
	require.Equal(t, 0, code, stderr)
	assert.Len(t, strings.Fields(stdout), 4)
	assert.Equal(t, "Would sign 4 revisions.\n", stderr)

	_, stderr, code = execute("sign-missing", "--config", cfg, "--key", priv)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Signed 4 revisions.\n", stderr)

	stdout, stderr, code = execute("sign-missing", "--config", cfg, "--key", priv)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)

	withKeyring := writeConfig(t, dir, "keyring.json5", `{branch: {name: "trunk", tip: "D"}, keyring: "`+pub+`"}`)
	stdout, stderr, code = execute("log", "--config", cfg, "--config", withKeyring, "--show-signature")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 3, strings.Count(stdout, "signature: valid signature from Signer <signer@example.com>\n"), stdout)

	stdout, stderr, code = execute("verify-signatures", "--config", cfg, "--config", withKeyring)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "STATUS")
	assert.Regexp(t, `valid\s+\|\s+4\s`, stdout)
	assert.Regexp(t, `not_signed\s+\|\s+0\s`, stdout)

	_, _, code = execute("sign-missing", "--config", cfg)
	assert.Equal(t, exitCodeError, code)
}

func TestVerifySignatures_NeedsKeyring(t *testing.T) {
	cfg := newRepo(t)
	_, stderr, code := execute("verify-signatures", "--config", cfg)
	assert.Equal(t, exitCodeError, code)
	assert.Contains(t, stderr, "keyring")
}
