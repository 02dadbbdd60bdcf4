package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionPrefix = "session_"

	// SessionDateLayout is the DD-MM-YYYY date segment of a SessionID.
	SessionDateLayout = "02-01-2006"
)

var (
	ErrEmptySessionID   = errors.New("session id is empty")
	ErrSessionIDPrefix  = errors.New("session id must start with " + sessionPrefix)
	ErrSessionIDSegment = errors.New("session id must have area, date and shift segments")
)

// SessionID identifies one shift: session_<area>_<DD-MM-YYYY>_<shift>.
type SessionID string

// NewSessionID builds the identifier for an area, calendar date and shift letter.
func NewSessionID(area string, date time.Time, shift string) SessionID {
	return SessionID(fmt.Sprintf("%s%s_%s_%s", sessionPrefix, area, date.Format(SessionDateLayout), shift))
}

// String implements fmt.Stringer.
func (id SessionID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty.
func (id SessionID) IsZero() bool {
	return id == ""
}

// Validate checks the identifier format without allocating its parts.
func (id SessionID) Validate() error {
	_, _, _, err := ParseSessionID(string(id))
	return err
}

// ParseSessionID splits an identifier into its area, date and shift. The area may
// contain underscores.
func ParseSessionID(s string) (area string, date time.Time, shift string, err error) {
	if s == "" {
		return "", time.Time{}, "", ErrEmptySessionID
	}
	if !strings.HasPrefix(s, sessionPrefix) {
		return "", time.Time{}, "", ErrSessionIDPrefix
	}
	rest := strings.TrimPrefix(s, sessionPrefix)

	shiftAt := strings.LastIndex(rest, "_")
	if shiftAt <= 0 || shiftAt == len(rest)-1 {
		return "", time.Time{}, "", ErrSessionIDSegment
	}
	shift = rest[shiftAt+1:]
	rest = rest[:shiftAt]

	dateAt := strings.LastIndex(rest, "_")
	if dateAt <= 0 {
		return "", time.Time{}, "", ErrSessionIDSegment
	}
	area = rest[:dateAt]

	date, err = time.Parse(SessionDateLayout, rest[dateAt+1:])
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("invalid session date %q: %w", rest[dateAt+1:], err)
	}
	return area, date, shift, nil
}

// idNamespace scopes the name-based UUIDs produced by DeriveID.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:recebimento:legacy"))

// DeriveID returns a name-based UUID built from kind and parts. Equal inputs always
// produce the same id.
func DeriveID(kind string, parts ...string) string {
	name := kind + "\x00" + strings.Join(parts, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// NewID returns a random identifier for records created online.
func NewID() string {
	return uuid.NewString()
}
