// Package httpserver exposes the note service over HTTP.
package httpserver

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/gophnote/internal/errs"
	"github.com/and161185/gophnote/internal/model"
	"github.com/and161185/gophnote/internal/service"
)

// AuthCookie is the name of the path-scoped session cookie.
const AuthCookie = "auth"

// Server wires the note service into HTTP handlers.
type Server struct {
	notes        service.NoteService
	links        linkMinter
	log          *zap.Logger
	render       *renderer
	secureCookie bool
}

// linkMinter derives share link ids for display on the editor page.
type linkMinter interface {
	Mint(path string) string
}

// New constructs a Server. secureCookie sets the Secure attribute on session cookies.
func New(notes service.NoteService, links linkMinter, log *zap.Logger, secureCookie bool) (*Server, error) {
	rd, err := newRenderer(log)
	if err != nil {
		return nil, err
	}
	return &Server{notes: notes, links: links, log: log, render: rd, secureCookie: secureCookie}, nil
}

// Handler returns the router wrapped in request id, recovery and access log middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	// {path} is matched and stored in its escaped form
	r.UseEncodedPath()

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.Handle("/favicon.ico", http.NotFoundHandler())
	r.HandleFunc("/list", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/share/{linkId}", s.handleShare).Methods(http.MethodGet)
	r.HandleFunc("/{path}", s.handleView).Methods(http.MethodGet)
	r.HandleFunc("/{path}", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/{path}/auth", s.handleAuth).Methods(http.MethodPost)
	r.HandleFunc("/{path}/pw", s.handlePassword).Methods(http.MethodPost)
	r.HandleFunc("/{path}/setting", s.handleSetting).Methods(http.MethodPost)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.render.notFound(w)
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound

	// outside the router so unmatched requests are covered too
	return RequestID(Recover(s.log)(Logging(s.log)(r)))
}

// --- pages ---

const pathAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// randomPath returns n characters drawn uniformly from pathAlphabet.
func randomPath(n int) (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(pathAlphabet)))
	for i := 0; i < n; i++ {
		k, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(pathAlphabet[k.Int64()])
	}
	return b.String(), nil
}

// handleRoot redirects to a fresh random note.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	p, err := randomPath(3)
	if err != nil {
		s.log.Error("random path", zap.Error(err))
		s.render.failure(w)
		return
	}
	http.Redirect(w, r, "/"+p, http.StatusFound)
}

// handleView renders the editor, or a password prompt for locked notes.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	n, _, err := s.notes.Open(r.Context(), path, authToken(r))
	switch {
	case errors.Is(err, errs.ErrAuthRequired):
		s.render.page(w, http.StatusOK, "need_passwd.html", pageData{Title: title(path), Path: path})
		return
	case errors.Is(err, errs.ErrInvalidArgument):
		s.render.notFound(w)
		return
	case err != nil:
		s.log.Error("open note", zap.String("path", path), zap.Error(err))
		s.render.failure(w)
		return
	}

	data := pageData{
		Title:   title(path),
		Path:    path,
		Content: n.Content,
		Mode:    string(n.Meta.EffectiveMode()),
		Shared:  n.Meta.Shared(),
	}
	if data.Shared {
		data.ShareURL = "/share/" + s.links.Mint(path)
	}
	w.Header().Set("Cache-Control", "no-store")
	s.render.page(w, http.StatusOK, "edit.html", data)
}

// handleShare renders a shared note read-only.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	linkID := mux.Vars(r)["linkId"]
	n, err := s.notes.ReadShared(r.Context(), linkID)
	if errors.Is(err, errs.ErrNotFound) {
		s.render.notFound(w)
		return
	}
	if err != nil {
		s.log.Error("read shared", zap.String("link", linkID), zap.Error(err))
		s.render.failure(w)
		return
	}

	data := pageData{Title: title(n.Path), Path: n.Path, Content: n.Content, Mode: string(n.Meta.EffectiveMode())}
	if n.Meta.EffectiveMode() == model.ModeMarkdown {
		html, err := s.render.markdown(n.Content)
		if err != nil {
			s.log.Warn("markdown", zap.String("link", linkID), zap.Error(err))
		} else {
			data.HTML = html
		}
	}
	s.render.page(w, http.StatusOK, "share.html", data)
}

// handleList renders every stored note with its modification time.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.List(r.Context())
	if err != nil {
		s.log.Error("list notes", zap.Error(err))
		s.render.failure(w)
		return
	}
	rows := make([]listRow, 0, len(notes))
	for _, n := range notes {
		row := listRow{Path: n.Path, Name: title(n.Path)}
		if n.Meta.UpdateAt > 0 {
			row.Modified = time.Unix(n.Meta.UpdateAt, 0).UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	s.render.page(w, http.StatusOK, "list.html", pageData{Title: "Note List", Rows: rows})
}

// --- API ---

// handleSave writes form field "t"; blank content deletes the note.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		respondError(w, CodeStoreFailed, "Bad form data!")
		return
	}
	err := s.notes.SaveContent(r.Context(), path, authToken(r), r.FormValue("t"))
	switch {
	case err == nil:
		respondOK(w, nil)
	case errors.Is(err, errs.ErrAuthRequired):
		respondError(w, CodeAuthFailed, "Password auth failed! Try refreshing this page if you had just set a password.")
	default:
		s.log.Error("save note", zap.String("path", path), zap.Error(err))
		respondError(w, CodeStoreFailed, "Note save failed!")
	}
}

type passwdRequest struct {
	Passwd string `json:"passwd"`
}

// handleAuth checks the password and sets the path-scoped session cookie.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	var req passwdRequest
	if !decodeJSON(w, r, &req) {
		respondError(w, CodeAuthFailed, "Password auth failed!")
		return
	}
	token, exp, err := s.notes.Authenticate(r.Context(), path, req.Passwd)
	if err != nil {
		if !errors.Is(err, errs.ErrUnauthorized) {
			s.log.Error("authenticate", zap.String("path", path), zap.Error(err))
		}
		respondError(w, CodeAuthFailed, "Password auth failed!")
		return
	}
	http.SetCookie(w, s.authCookie(path, token, exp))
	respondOK(w, map[string]bool{"refresh": true})
}

// handlePassword sets or clears the note password and drops the client's session cookie.
func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	var req passwdRequest
	if !decodeJSON(w, r, &req) {
		respondError(w, CodePasswordFailed, "Password setting failed!")
		return
	}
	if err := s.notes.ChangePassword(r.Context(), path, authToken(r), req.Passwd); err != nil {
		if !errors.Is(err, errs.ErrAuthRequired) {
			s.log.Error("change password", zap.String("path", path), zap.Error(err))
		}
		respondError(w, CodePasswordFailed, "Password setting failed!")
		return
	}
	http.SetCookie(w, s.authCookie(path, "", time.Unix(0, 0)))
	respondOK(w, nil)
}

// settingRequest distinguishes omitted fields (nil) from explicit values.
type settingRequest struct {
	Mode  *string `json:"mode"`
	Share *bool   `json:"share"`
}

// handleSetting merges mode/share; returns the link id when sharing is switched on.
func (s *Server) handleSetting(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	var req settingRequest
	if !decodeJSON(w, r, &req) {
		respondError(w, CodeSettingFailed, "Update Setting failed!")
		return
	}
	patch := model.SettingsPatch{Share: req.Share}
	if req.Mode != nil {
		m := model.Mode(*req.Mode)
		patch.Mode = &m
	}

	linkID, err := s.notes.UpdateSettings(r.Context(), path, authToken(r), patch)
	if err != nil {
		if !errors.Is(err, errs.ErrAuthRequired) && !errors.Is(err, errs.ErrInvalidArgument) {
			s.log.Error("update settings", zap.String("path", path), zap.Error(err))
		}
		respondError(w, CodeSettingFailed, "Update Setting failed!")
		return
	}
	if linkID != "" {
		respondOK(w, linkID)
		return
	}
	respondOK(w, nil)
}

// --- helpers ---

func authToken(r *http.Request) string {
	c, err := r.Cookie(AuthCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) authCookie(path, value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     AuthCookie,
		Value:    value,
		Path:     "/" + path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}

// title returns the human-readable form of an escaped path.
func title(path string) string {
	t, err := url.PathUnescape(path)
	if err != nil {
		return path
	}
	return t
}
