package datafiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UpdateFailedInfo is the advisory banner prepended to rich failure reports.
const UpdateFailedInfo = "The data update failed. I will not send any messages about further failures for 12h. I will send a message when the update works again."

// Titles of rich reports.
const (
	TitleFailed    = "SpriteCollab Update Failed"
	TitleRecovered = "SpriteCollab Update Recovered"
)

const previewMaxLen = 300

// ReportKind tags the variant held by a Report.
type ReportKind int

const (
	ReportOK ReportKind = iota
	ReportJSON
	ReportCSV
	ReportIO
	ReportDuplicateCreditID
	ReportAnimData
)

func (k ReportKind) String() string {
	switch k {
	case ReportOK:
		return "ok"
	case ReportJSON:
		return "json"
	case ReportCSV:
		return "csv"
	case ReportIO:
		return "io"
	case ReportDuplicateCreditID:
		return "duplicate_credit_id"
	case ReportAnimData:
		return "anim_data"
	default:
		return "unknown"
	}
}

// AnimDataFailure names one form whose AnimData.xml failed validation.
type AnimDataFailure struct {
	MonsterID int
	FormPath  []int
	Err       error
}

// Location renders the monster and form path like the on-disk layout,
// e.g. 0025/0001.
func (f AnimDataFailure) Location() string {
	parts := []string{fmt.Sprintf("%04d", f.MonsterID)}
	for _, p := range f.FormPath {
		parts = append(parts, fmt.Sprintf("%04d", p))
	}
	return strings.Join(parts, "/")
}

// Report describes the outcome of one data ingestion attempt. A Report is
// immutable; build it with OKReport, NewFileReport or NewAnimDataReport.
// Failure reports also satisfy the error interface.
type Report struct {
	kind     ReportKind
	path     string
	err      *DataReadError
	failures []AnimDataFailure
}

// OKReport reports a successful ingestion.
func OKReport() Report {
	return Report{kind: ReportOK}
}

// NewFileReport builds the report for a failed read of the file at path. err
// is classified by its DataReadError kind; anything else counts as I/O.
func NewFileReport(path string, err error) Report {
	var readErr *DataReadError
	if !errors.As(err, &readErr) {
		readErr = ioError(err)
	}
	kind := ReportIO
	switch readErr.Kind {
	case KindJSON:
		kind = ReportJSON
	case KindCSV:
		kind = ReportCSV
	case KindDuplicateCreditID:
		kind = ReportDuplicateCreditID
	}
	return Report{kind: kind, path: path, err: readErr}
}

// NewAnimDataReport aggregates per-form validation failures.
func NewAnimDataReport(failures []AnimDataFailure) Report {
	cp := make([]AnimDataFailure, len(failures))
	copy(cp, failures)
	return Report{kind: ReportAnimData, failures: cp}
}

// Kind returns the variant of the report.
func (r Report) Kind() ReportKind { return r.kind }

// Path returns the offending file, empty for OK and aggregate reports.
func (r Report) Path() string { return r.path }

// Failures returns a copy of the aggregated per-form failures.
func (r Report) Failures() []AnimDataFailure {
	cp := make([]AnimDataFailure, len(r.failures))
	copy(cp, r.failures)
	return cp
}

// IsOK reports whether r describes a successful ingestion.
func (r Report) IsOK() bool { return r.kind == ReportOK }

// Unwrap returns the underlying read error of file reports.
func (r Report) Unwrap() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

func (r Report) Error() string {
	return r.FormatShort()
}

// FormatShort renders the report for logs.
func (r Report) FormatShort() string {
	switch r.kind {
	case ReportOK:
		return "Success."
	case ReportAnimData:
		lines := []string{"Failed reading one or more animation data XML files:"}
		lines = append(lines, r.failureLines()...)
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("Failed reading %s: %s", filepath.Base(r.path), r.err)
	}
}

// FormatRich renders the report for human notification channels. Parse
// errors with a known line number embed an excerpt of that line; the excerpt
// is omitted if the file or line cannot be read.
func (r Report) FormatRich() (title, body string) {
	if r.kind == ReportOK {
		return TitleRecovered, "The SpriteCollab data update is working again."
	}
	var desc string
	switch r.kind {
	case ReportAnimData:
		desc = fmt.Sprintf("Failed reading one or more AnimData.xml files: ```\n%s\n```",
			strings.Join(r.failureLines(), "\n"))
	case ReportJSON, ReportCSV:
		desc = r.FormatShort() + linePreview(r.path, r.err.Line)
	default:
		desc = r.FormatShort()
	}
	return TitleFailed, fmt.Sprintf("*%s*\n\n**Description**:\n%s", UpdateFailedInfo, desc)
}

func (r Report) failureLines() []string {
	lines := make([]string, 0, len(r.failures))
	for _, f := range r.failures {
		lines = append(lines, fmt.Sprintf("%s: %v", f.Location(), f.Err))
	}
	return lines
}

type reportJSON struct {
	Kind     string        `json:"kind"`
	File     string        `json:"file,omitempty"`
	Line     int           `json:"line,omitempty"`
	Message  string        `json:"message"`
	Failures []failureJSON `json:"failures,omitempty"`
}

type failureJSON struct {
	MonsterID int    `json:"monster_id"`
	FormPath  []int  `json:"form_path"`
	Error     string `json:"error"`
}

// MarshalJSON encodes the report for archival.
func (r Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{Kind: r.kind.String(), File: r.path, Message: r.FormatShort()}
	if r.err != nil {
		out.Line = r.err.Line
	}
	for _, f := range r.failures {
		path := f.FormPath
		if path == nil {
			path = []int{}
		}
		out.Failures = append(out.Failures, failureJSON{MonsterID: f.MonsterID, FormPath: path, Error: f.Err.Error()})
	}
	return json.Marshal(out)
}

// linePreview returns a quoted excerpt of line lineNo of the file at path,
// or an empty string if the line is unknown or unavailable.
func linePreview(path string, lineNo int) string {
	if lineNo <= 0 {
		return ""
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	if lineNo > len(lines) {
		return ""
	}
	line := strings.TrimSuffix(lines[lineNo-1], "\r")
	return fmt.Sprintf("\nLine %d:\n```\n%s\n```", lineNo, truncateEllipsis(line, previewMaxLen))
}

func truncateEllipsis(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
