package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/gophnote/internal/crypto"
	"github.com/and161185/gophnote/internal/repository/memory"
	httpserver "github.com/and161185/gophnote/internal/server/http"
	"github.com/and161185/gophnote/internal/service"
	"github.com/and161185/gophnote/internal/session"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "gophnote")
}

func startServer(t *testing.T) string {
	t.Helper()
	shares := service.NewShareService(memory.NewShareRepo())
	svc := service.NewNoteService(memory.NewNoteRepo(), shares,
		crypto.NewHasher(nil), session.NewIssuer([]byte("k"), time.Hour))
	s, err := httpserver.New(svc, shares, zaptest.NewLogger(t), false)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// gn runs one command and returns its stdout.
func gn(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"-addr", addr}, args...), &out)
	return out.String(), err
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	require.Equal(t, base, cfgDir())
	require.Equal(t, filepath.Join(base, "tokens.json"), tokenPath())
}

func Test_tokens_SaveLoadDrop(t *testing.T) {
	_ = withTmpConfig(t)

	require.Empty(t, loadToken("/abc"))
	require.NoError(t, saveToken("/abc", "tok", time.Now().Add(time.Minute)))
	require.NoError(t, saveToken("/old", "tok2", time.Now().Add(-time.Minute)))
	require.Equal(t, "tok", loadToken("/abc"))
	require.Empty(t, loadToken("/old"), "expired token must not be used")

	st, err := os.Stat(tokenPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	require.NoError(t, dropToken("/abc"))
	require.NoError(t, dropToken("/never"))
	require.Empty(t, loadToken("/abc"))
}

func Test_loadTokens_Corrupt(t *testing.T) {
	_ = withTmpConfig(t)
	require.NoError(t, os.MkdirAll(cfgDir(), 0o700))
	require.NoError(t, os.WriteFile(tokenPath(), []byte("{"), 0o600))

	_, err := loadTokens()
	require.Error(t, err)
	require.Empty(t, loadToken("/abc"))
}

func Test_readAll_File_And_Stdin(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(tmp, []byte("hello"), 0o600))
	b, err := readAll(tmp)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))

	r, w, _ := os.Pipe()
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()
	go func() { _, _ = io.WriteString(w, "from-stdin"); _ = w.Close() }()
	b, err = readAll("-")
	require.NoError(t, err)
	require.Equal(t, "from-stdin", string(b))
}

func Test_printJSON_WritesPretty(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printJSON(&out, map[string]any{"a": 1})

	var m map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &m))
	require.Equal(t, float64(1), m["a"])
	require.Contains(t, out.String(), "\n  ")
}

func Test_notePath(t *testing.T) {
	t.Parallel()
	require.Equal(t, "/abc", notePath("abc"))
	require.Equal(t, "/abc", notePath("/abc"))
	require.Equal(t, "/a%20b", notePath("a b"))
}

func Test_loadTLS_Variants(t *testing.T) {
	t.Parallel()

	tc, err := loadTLS("", true)
	require.NoError(t, err)
	require.True(t, tc.InsecureSkipVerify)

	tc, err = loadTLS("", false)
	require.NoError(t, err)
	require.Nil(t, tc)

	tmp := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(tmp, []byte("not pem"), 0o600))
	_, err = loadTLS(tmp, false)
	require.Error(t, err)
}

func Test_newClient_BadAddr(t *testing.T) {
	t.Parallel()
	for _, a := range []string{"localhost:8080", "ftp://x", "http://"} {
		_, err := newClient(a, "", false)
		require.Error(t, err, a)
	}
}

func Test_run_Usage(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	require.True(t, strings.HasPrefix(out.String(), "gn "))
}

func Test_run_Workflow(t *testing.T) {
	_ = withTmpConfig(t)
	addr := startServer(t)

	content := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(content, []byte("# hi\n\nthere"), 0o600))

	out, err := gn(t, addr, "put", "-p", "abc", "-file", content)
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)

	out, err = gn(t, addr, "get", "-p", "abc")
	require.NoError(t, err)
	require.Equal(t, "# hi\n\nthere", out)

	_, err = gn(t, addr, "passwd", "-p", "abc", "-pw", "x")
	require.NoError(t, err)

	_, err = gn(t, addr, "get", "-p", "abc")
	require.ErrorIs(t, err, errLocked)

	_, err = gn(t, addr, "auth", "-p", "abc", "-pw", "wrong")
	var ae *apiError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, 10002, ae.Code)

	_, err = gn(t, addr, "auth", "-p", "abc", "-pw", "x")
	require.NoError(t, err)
	require.NotEmpty(t, loadToken("/abc"))

	out, err = gn(t, addr, "get", "-p", "abc")
	require.NoError(t, err)
	require.Equal(t, "# hi\n\nthere", out)

	_, err = gn(t, addr, "set", "-p", "abc", "-mode", "markdown")
	require.NoError(t, err)
	out, err = gn(t, addr, "set", "-p", "abc", "-share", "true")
	require.NoError(t, err)
	require.Regexp(t, `/share/[0-9a-f]{32}\n$`, out)
	id := strings.TrimSpace(out[strings.LastIndex(out, "/")+1:])

	out, err = gn(t, addr, "share", "-id", id)
	require.NoError(t, err)
	require.Contains(t, out, "hi")
	require.Contains(t, out, "there")

	out, err = gn(t, addr, "list")
	require.NoError(t, err)
	require.Contains(t, out, `"path": "abc"`)

	_, err = gn(t, addr, "passwd", "-p", "abc", "-pw", "")
	require.NoError(t, err)
	require.Empty(t, loadToken("/abc"))

	_, err = gn(t, addr, "rm", "-p", "abc")
	require.NoError(t, err)

	_, err = gn(t, addr, "share", "-id", id)
	require.Error(t, err)
}

func Test_run_ArgErrors(t *testing.T) {
	_ = withTmpConfig(t)
	addr := startServer(t)

	for _, args := range [][]string{
		{"get"},
		{"put", "-p", "x"},
		{"auth", "-p", "x"},
		{"set", "-p", "x"},
		{"set", "-p", "x", "-share", "maybe"},
		{"share"},
	} {
		_, err := gn(t, addr, args...)
		require.Error(t, err, args)
	}
	_, err := gn(t, addr, "bogus")
	require.ErrorIs(t, err, errUsage)
}
