// Package export renders a retrospective session into portable documents.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Framework is the board layout every session uses.
const Framework = "Start/Stop/Continue"

// ParseFormat resolves a query value; empty means JSON.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatHTML, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, value)
	}
}

// Request contains parameters for an export operation
type Request struct {
	SessionID string
	Format    Format
	Archive   bool
}

// Document is the portable summary of one session.
type Document struct {
	SessionID    string        `json:"sessionId"`
	Facilitator  string        `json:"facilitator"`
	Date         time.Time     `json:"date"`
	Framework    string        `json:"framework"`
	Participants []Participant `json:"participants"`
	Notes        []Note        `json:"notes"`
	Groups       []Group       `json:"groups"`
	ActionItems  []ActionItem  `json:"actionItems"`
}

type Participant struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	Joined bool   `json:"joined"`
}

type Note struct {
	ID      string  `json:"id"`
	Author  string  `json:"author"`
	Column  string  `json:"column"`
	Text    string  `json:"text"`
	GroupID *string `json:"groupId"`
}

type Group struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Column  string   `json:"column"`
	NoteIDs []string `json:"noteIds"`
	Votes   int      `json:"votes"`
}

type ActionItem struct {
	Title     string    `json:"title"`
	Assignee  string    `json:"assignee"`
	LinkedTo  *string   `json:"linkedTo"`
	CreatedAt time.Time `json:"createdAt"`
}

// Result contains the export output
type Result struct {
	Data       []byte
	Filename   string
	MimeType   string
	ArchiveKey string
}

var (
	// ErrUnsupportedFormat indicates an export format outside json, html and pdf.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
