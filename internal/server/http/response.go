package httpserver

import (
	"encoding/json"
	"mime"
	"net/http"
)

// Application result codes carried in the "err" field of JSON responses.
const (
	CodeOK             = 0
	CodeStoreFailed    = 10001
	CodeAuthFailed     = 10002
	CodePasswordFailed = 10003
	CodeSettingFailed  = 10004
)

// envelope is the JSON body of every API response.
type envelope struct {
	Err  int    `json:"err"`
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func respondOK(w http.ResponseWriter, data any) {
	respondJSON(w, envelope{Err: CodeOK, Data: data})
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, envelope{Err: code, Msg: msg})
}

// maxJSONBody bounds JSON request bodies; they only carry a password or two flags.
const maxJSONBody = 64 << 10

// decodeJSON requires an application/json body and decodes it into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return false
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v) == nil
}
