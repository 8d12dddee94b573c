// Package models defines the GORM models loopcast persists: stream
// definitions and the history of finished sessions.
package models

import (
	"bytes"
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// BoolVal reads a default:true column; nil counts as true.
func BoolVal(b *bool) bool { return b == nil || *b }

// ULID is a primary key stored as its 26 character text form. The zero
// value is stored as NULL and encoded as JSON null.
type ULID ulid.ULID

// NewULID returns a ULID stamped with the current time.
func NewULID() ULID {
	return ULID(ulid.MustNew(ulid.Now(), rand.Reader))
}

// ParseULID parses the text form of a ULID.
func ParseULID(s string) (ULID, error) {
	var u ULID
	if err := u.parse(s); err != nil {
		return ULID{}, err
	}
	return u, nil
}

func (u *ULID) parse(s string) error {
	if s == "" {
		*u = ULID{}
		return nil
	}
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return fmt.Errorf("invalid ULID %q: %w", s, err)
	}
	*u = ULID(id)
	return nil
}

func (u ULID) String() string { return ulid.ULID(u).String() }

// IsZero reports whether u is unset.
func (u ULID) IsZero() bool { return u == ULID{} }

// Time returns the timestamp embedded in u.
func (u ULID) Time() time.Time { return ulid.Time(ulid.ULID(u).Time()) }

func (ULID) GormDataType() string { return "varchar(26)" }

func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

func (u *ULID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		return u.parse(v)
	case []byte:
		return u.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into ULID", src)
}

func (u ULID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return fmt.Appendf(nil, "%q", u.String()), nil
}

func (u *ULID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*u = ULID{}
		return nil
	}
	s, ok := bytes.CutPrefix(data, []byte(`"`))
	if ok {
		s, ok = bytes.CutSuffix(s, []byte(`"`))
	}
	if !ok {
		return fmt.Errorf("ULID must be a JSON string, got %s", data)
	}
	return u.parse(string(s))
}

// BaseModel is embedded by every persisted model. Rows are soft deleted.
type BaseModel struct {
	ID        ULID           `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// BeforeCreate assigns an ID unless the caller chose one.
func (b *BaseModel) BeforeCreate(*gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewULID()
	}
	return nil
}
