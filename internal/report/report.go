// Package report records what a dispatch run did.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Run collects the outcome of one dispatch run.
type Run struct {
	SessionID   string        `json:"session_id,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
	Duration    time.Duration `json:"-"`
	DurationMs  int64         `json:"duration_ms,omitempty"`
	SourceDir   string        `json:"source_dir"`
	Suffix      string        `json:"suffix"`
	Entries     int           `json:"entries"`
	Matched     []string      `json:"matched"`
	Invocations []Invocation  `json:"invocations"`
	Error       string        `json:"error,omitempty"`
}

// Invocation is one launch of the external command. File is the match that
// triggered it; Command and Args are what was actually run.
type Invocation struct {
	File     string        `json:"file"`
	Command  string        `json:"command"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"-"`
	// DurationMs is filled in from Duration by AddInvocation.
	DurationMs int64 `json:"duration_ms"`
}

// New starts tracking a run.
func New(sourceDir, suffix string) *Run {
	return &Run{
		StartedAt:   time.Now(),
		SourceDir:   sourceDir,
		Suffix:      suffix,
		Matched:     []string{},
		Invocations: []Invocation{},
	}
}

// SetScan records the listing result.
func (r *Run) SetScan(entries int, matched []string) {
	r.Entries = entries
	r.Matched = append([]string{}, matched...)
}

// AddInvocation appends one invocation record.
func (r *Run) AddInvocation(inv Invocation) {
	inv.DurationMs = inv.Duration.Milliseconds()
	r.Invocations = append(r.Invocations, inv)
}

// Finish marks the run as complete. A nil err means every match was
// dispatched.
func (r *Run) Finish(err error) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.DurationMs = r.Duration.Milliseconds()
	if err != nil {
		r.Error = err.Error()
	}
}

// NonZeroExits counts invocations whose command exited non-zero.
func (r *Run) NonZeroExits() int {
	n := 0
	for _, inv := range r.Invocations {
		if inv.ExitCode != 0 {
			n++
		}
	}
	return n
}

// PrintSummary writes a human-readable summary.
func (r *Run) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║           GENDOCS RUN REPORT         ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Entries:     %-23d║\n", r.Entries)
	fmt.Fprintf(w, "║ Matched:     %-23d║\n", len(r.Matched))
	fmt.Fprintf(w, "║ Invoked:     %-23d║\n", len(r.Invocations))
	fmt.Fprintf(w, "║ Non-zero:    %-23d║\n", r.NonZeroExits())
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ SOURCE %s (*%s)\n", r.SourceDir, r.Suffix)
	for _, inv := range r.Invocations {
		fmt.Fprintf(w, "║   %-20s %8s  exit=%d\n", inv.File, inv.Duration.Round(time.Millisecond), inv.ExitCode)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERROR\n")
		fmt.Fprintf(w, "║   • %s\n", r.Error)
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *Run) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
