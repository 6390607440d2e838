// Package model defines domain entities used by services and repositories.
package model

// Mode is a rendering hint for the note consumer.
type Mode string

const (
	ModePlain    Mode = "plain"
	ModeMarkdown Mode = "markdown"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePlain || m == ModeMarkdown
}

// Metadata is stored alongside note content. Zero value is the empty object.
type Metadata struct {
	PW       string `json:"pw,omitempty"`       // encoded password digest, empty = no password
	Mode     Mode   `json:"mode,omitempty"`     // empty means plain
	Share    *bool  `json:"share,omitempty"`    // nil = never set
	UpdateAt int64  `json:"updateAt,omitempty"` // unix seconds of last content write
}

// HasPassword reports whether the note is password protected.
func (m Metadata) HasPassword() bool { return m.PW != "" }

// EffectiveMode returns the mode with the plain default applied.
func (m Metadata) EffectiveMode() Mode {
	if m.Mode == "" {
		return ModePlain
	}
	return m.Mode
}

// Shared reports whether a share link currently exists for the note.
func (m Metadata) Shared() bool { return m.Share != nil && *m.Share }

// Note is a single stored record. Ver == 0 means no record exists.
type Note struct {
	Path    string
	Content string
	Meta    Metadata
	Ver     int64 // optimistic concurrency version (>= 0)
}

// Exists reports whether the note is backed by a stored record.
func (n Note) Exists() bool { return n.Ver > 0 }

// NoteSummary is a listing row.
type NoteSummary struct {
	Path string
	Meta Metadata
}

// SettingsPatch carries only the fields present in a setting request.
type SettingsPatch struct {
	Mode  *Mode
	Share *bool
}

// Access is the outcome of the password gate for a request.
type Access int

const (
	// Locked: password set and no valid session.
	Locked Access = iota
	// Unlocked: no password set.
	Unlocked
	// Authorized: password set and a valid session presented.
	Authorized
)

func (a Access) String() string {
	switch a {
	case Unlocked:
		return "unlocked"
	case Authorized:
		return "authorized"
	default:
		return "locked"
	}
}

// Permitted reports whether reads and writes are allowed.
func (a Access) Permitted() bool { return a == Unlocked || a == Authorized }
