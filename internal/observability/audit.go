package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventRunStart AuditEventType = "run.start"
	AuditEventScan     AuditEventType = "scan"
	AuditEventInvoke   AuditEventType = "invoke"
	AuditEventRunEnd   AuditEventType = "run.end"
	AuditEventRunError AuditEventType = "run.error"
)

// AuditEvent is a single JSON-lines audit entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	Success     bool                   `json:"success"`
	DurationMs  int64                  `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stderr",
	}
}

// NewAuditLogger creates a new audit logger. A disabled config yields a
// logger that drops every event without opening any output.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}
	if !config.Enabled {
		return &AuditLogger{enabled: false}, nil
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stderr", "":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		enabled:   true,
	}, nil
}

// SessionID identifies the run all events of this logger belong to.
func (l *AuditLogger) SessionID() string { return l.sessionID }

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogRunStart logs the start of a dispatch run.
func (l *AuditLogger) LogRunStart(sourceDir, suffix, command string) error {
	return l.Log(&AuditEvent{
		EventType: AuditEventRunStart,
		Success:   true,
		Message:   fmt.Sprintf("Dispatching %s for %s*", command, suffix),
		Details: map[string]interface{}{
			"source_dir": sourceDir,
			"suffix":     suffix,
			"command":    command,
		},
	})
}

// LogScan logs the result of listing the source directory.
func (l *AuditLogger) LogScan(sourceDir string, entries int, matched []string) error {
	return l.Log(&AuditEvent{
		EventType: AuditEventScan,
		Success:   true,
		Message:   fmt.Sprintf("Scanned %d entries, %d matched", entries, len(matched)),
		Details: map[string]interface{}{
			"source_dir": sourceDir,
			"entries":    entries,
			"matched":    matched,
		},
	})
}

// LogInvoke logs one finished invocation. Exit code is informational; a
// non-zero exit is still a successful dispatch.
func (l *AuditLogger) LogInvoke(file, command string, args []string, exitCode int, duration time.Duration) error {
	return l.Log(&AuditEvent{
		EventType:  AuditEventInvoke,
		Success:    true,
		DurationMs: duration.Milliseconds(),
		Message:    fmt.Sprintf("Invoked %s for %s", command, file),
		Details: map[string]interface{}{
			"file":      file,
			"command":   command,
			"args":      args,
			"exit_code": exitCode,
		},
	})
}

// LogRunEnd logs a completed run.
func (l *AuditLogger) LogRunEnd(invocations int, duration time.Duration) error {
	return l.Log(&AuditEvent{
		EventType:  AuditEventRunEnd,
		Success:    true,
		DurationMs: duration.Milliseconds(),
		Message:    fmt.Sprintf("Run completed: %d invocations", invocations),
		Details: map[string]interface{}{
			"invocations": invocations,
		},
	})
}

// LogRunError logs a run aborted by err.
func (l *AuditLogger) LogRunError(err error, invocations int) error {
	return l.Log(&AuditEvent{
		EventType:   AuditEventRunError,
		Success:     false,
		Message:     "Run aborted",
		ErrorDetail: err.Error(),
		Details: map[string]interface{}{
			"invocations": invocations,
		},
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
