// Command gn is a CLI client for the gophnote service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// authCookie is the session cookie the server scopes to a note path.
const authCookie = "auth"

// ---- config/token store ----

type tokenEntry struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// tokenFile maps an escaped note path to its session.
type tokenFile map[string]tokenEntry

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "gophnote")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gophnote")
}

func tokenPath() string { return filepath.Join(cfgDir(), "tokens.json") }

func loadTokens() (tokenFile, error) {
	b, err := os.ReadFile(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return tokenFile{}, nil
	}
	if err != nil {
		return nil, err
	}
	tf := tokenFile{}
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, err
	}
	return tf, nil
}

func writeTokens(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func saveToken(path, tok string, exp time.Time) error {
	tf, err := loadTokens()
	if err != nil {
		return err
	}
	tf[path] = tokenEntry{Token: tok, ExpiresAt: exp}
	return writeTokens(tf)
}

func dropToken(path string) error {
	tf, err := loadTokens()
	if err != nil {
		return err
	}
	if _, ok := tf[path]; !ok {
		return nil
	}
	delete(tf, path)
	return writeTokens(tf)
}

// loadToken returns the saved session for path, or "" when there is none or it has expired.
func loadToken(path string) string {
	tf, err := loadTokens()
	if err != nil {
		return ""
	}
	e, ok := tf[path]
	if !ok || e.Token == "" || time.Now().After(e.ExpiresAt) {
		return ""
	}
	return e.Token
}

// ---- http client ----

// apiError is a non-zero "err" result from a JSON endpoint.
type apiError struct {
	Code int
	Msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Msg)
}

type apiResult struct {
	Err  int             `json:"err"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

var errLocked = errors.New("note is password protected (run: gn auth -p PATH -pw PASSWORD)")

type client struct {
	base string
	hc   *http.Client
}

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev only, behind -insecure
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

func newClient(addr, caPath string, insecure bool) (*client, error) {
	u, err := url.Parse(addr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("bad server address %q (want http[s]://host[:port])", addr)
	}
	tc, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tc
	hc := &http.Client{
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &client{base: strings.TrimRight(u.String(), "/"), hc: hc}, nil
}

func (c *client) do(ctx context.Context, method, path, token, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: authCookie, Value: token})
	}
	return c.hc.Do(req)
}

// call posts to a JSON endpoint and returns the decoded result with the response cookies.
func (c *client) call(ctx context.Context, path, token, contentType string, body io.Reader) (apiResult, []*http.Cookie, error) {
	resp, err := c.do(ctx, http.MethodPost, path, token, contentType, body)
	if err != nil {
		return apiResult{}, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiResult{}, nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var res apiResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return apiResult{}, nil, fmt.Errorf("decode response: %w", err)
	}
	if res.Err != 0 {
		return res, nil, &apiError{Code: res.Err, Msg: res.Msg}
	}
	return res, resp.Cookies(), nil
}

func (c *client) postJSON(ctx context.Context, path, token string, v any) (apiResult, []*http.Cookie, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return apiResult{}, nil, err
	}
	return c.call(ctx, path, token, "application/json", strings.NewReader(string(b)))
}

func (c *client) postForm(ctx context.Context, path, token, content string) error {
	form := url.Values{"t": {content}}
	_, _, err := c.call(ctx, path, token, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	return err
}

// page fetches an HTML page and parses it.
func (c *client) page(ctx context.Context, path, token string) (*html.Node, int, error) {
	resp, err := c.do(ctx, http.MethodGet, path, token, "", nil)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("parse page: %w", err)
	}
	return doc, resp.StatusCode, nil
}

// ---- html helpers ----

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if f := find(ch, match); f != nil {
			return f
		}
	}
	return nil
}

func findAll(n *html.Node, tag string, out []*html.Node) []*html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		out = append(out, n)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		out = findAll(ch, tag, out)
	}
	return out
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool { return attr(n, "id") == id }
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return b.String()
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// notePath returns the escaped URL path of a note name.
func notePath(name string) string {
	return "/" + url.PathEscape(strings.TrimPrefix(name, "/"))
}

const usageText = `gn CLI
Usage:
  gn -addr http[s]://HOST:PORT [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  list
  get     -p <path>
  put     -p <path> -file <file|->
  rm      -p <path>
  auth    -p <path> -pw <password>          (saves session)
  passwd  -p <path> -pw <password>          (empty clears)
  set     -p <path> [-mode plain|markdown] [-share true|false]
  share   -id <link id>
`

var errUsage = errors.New("usage")

var (
	version   = "dev"
	buildDate = "unknown"
)

// main runs a single command against the server.
func main() {
	err := run(context.Background(), os.Args[1:], os.Stdout)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fail(err)
	}
}

// run parses global flags and dispatches the subcommand.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	gfs := flag.NewFlagSet("gn", flag.ContinueOnError)
	addr := gfs.String("addr", "http://localhost:8080", "server base URL")
	caPath := gfs.String("cacert", "", "CA cert (PEM)")
	insecure := gfs.Bool("insecure", false, "skip cert verify (dev)")
	timeout := gfs.Duration("timeout", 30*time.Second, "request timeout")
	gfs.Usage = func() { fmt.Fprint(gfs.Output(), usageText) }
	if err := gfs.Parse(args); err != nil {
		return err
	}
	if gfs.NArg() < 1 {
		gfs.Usage()
		return errUsage
	}
	cmd, rest := gfs.Arg(0), gfs.Args()[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "gn %s (%s)\n", version, buildDate)
		return nil
	}

	cli, err := newClient(*addr, *caPath, *insecure)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch cmd {

	case "list":
		doc, status, err := cli.page(ctx, "/list", "")
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("list: status %d", status)
		}
		type row struct {
			Path     string `json:"path"`
			Modified string `json:"modified"`
		}
		rows := []row{}
		for _, tr := range findAll(doc, "tr", nil) {
			tds := findAll(tr, "td", nil)
			if len(tds) < 2 {
				continue
			}
			rows = append(rows, row{Path: strings.TrimSpace(text(tds[0])), Modified: strings.TrimSpace(text(tds[1]))})
		}
		printJSON(stdout, rows)

	case "get":
		fs := flag.NewFlagSet("get", flag.ContinueOnError)
		p := fs.String("p", "", "note path")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *p == "" {
			return errors.New("need -p")
		}
		path := notePath(*p)
		doc, status, err := cli.page(ctx, path, loadToken(path))
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("get: status %d", status)
		}
		if find(doc, byID("passwd")) != nil {
			return errLocked
		}
		ta := find(doc, byID("t"))
		if ta == nil {
			return errors.New("unexpected page: no editor")
		}
		fmt.Fprint(stdout, text(ta))

	case "put":
		fs := flag.NewFlagSet("put", flag.ContinueOnError)
		p := fs.String("p", "", "note path")
		dataFile := fs.String("file", "", "content file ('-'=stdin)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *p == "" || *dataFile == "" {
			return errors.New("need -p and -file")
		}
		data, err := readAll(*dataFile)
		if err != nil {
			return err
		}
		path := notePath(*p)
		if err := cli.postForm(ctx, path, loadToken(path), string(data)); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "ok")

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ContinueOnError)
		p := fs.String("p", "", "note path")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *p == "" {
			return errors.New("need -p")
		}
		path := notePath(*p)
		if err := cli.postForm(ctx, path, loadToken(path), ""); err != nil {
			return err
		}
		_ = dropToken(path)
		fmt.Fprintln(stdout, "ok")

	case "auth":
		fs := flag.NewFlagSet("auth", flag.ContinueOnError)
		p := fs.String("p", "", "note path")
		pw := fs.String("pw", "", "password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *p == "" || *pw == "" {
			return errors.New("need -p and -pw")
		}
		path := notePath(*p)
		_, cookies, err := cli.postJSON(ctx, path+"/auth", "", map[string]string{"passwd": *pw})
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			if ck.Name == authCookie && ck.Value != "" {
				if err := saveToken(path, ck.Value, ck.Expires); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "ok")
				return nil
			}
		}
		return errors.New("server did not return a session cookie")

	case "passwd":
		fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
		p := fs.String("p", "", "note path")
		pw := fs.String("pw", "", "new password (empty clears)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *p == "" {
			return errors.New("need -p")
		}
		path := notePath(*p)
		if _, _, err := cli.postJSON(ctx, path+"/pw", loadToken(path), map[string]string{"passwd": *pw}); err != nil {
			return err
		}
		// any saved session is now void
		_ = dropToken(path)
		fmt.Fprintln(stdout, "ok")

	case "set":
		fs := flag.NewFlagSet("set", flag.ContinueOnError)
		p := fs.String("p", "", "note path")
		mode := fs.String("mode", "", "plain|markdown")
		share := fs.String("share", "", "true|false")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *p == "" || (*mode == "" && *share == "") {
			return errors.New("need -p and one of -mode, -share")
		}
		body := map[string]any{}
		if *mode != "" {
			body["mode"] = *mode
		}
		if *share != "" {
			b, err := strconv.ParseBool(*share)
			if err != nil {
				return fmt.Errorf("-share: %w", err)
			}
			body["share"] = b
		}
		path := notePath(*p)
		res, _, err := cli.postJSON(ctx, path+"/setting", loadToken(path), body)
		if err != nil {
			return err
		}
		var linkID string
		if len(res.Data) > 0 && json.Unmarshal(res.Data, &linkID) == nil && linkID != "" {
			fmt.Fprintln(stdout, cli.base+"/share/"+linkID)
			return nil
		}
		fmt.Fprintln(stdout, "ok")

	case "share":
		fs := flag.NewFlagSet("share", flag.ContinueOnError)
		id := fs.String("id", "", "share link id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *id == "" {
			return errors.New("need -id")
		}
		doc, status, err := cli.page(ctx, "/share/"+url.PathEscape(*id), "")
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return fmt.Errorf("share link %s not found", *id)
		}
		if status != http.StatusOK {
			return fmt.Errorf("share: status %d", status)
		}
		body := find(doc, byTag("pre"))
		if body == nil {
			body = find(doc, byTag("article"))
		}
		if body == nil {
			return errors.New("unexpected page: no note body")
		}
		fmt.Fprint(stdout, text(body))

	default:
		gfs.Usage()
		return errUsage
	}
	return nil
}

// ---- helpers ----

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "error: code=%d msg=%s\n", ae.Code, ae.Msg)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
