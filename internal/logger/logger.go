package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gzhole/promptguard/internal/guard"
	"github.com/gzhole/promptguard/internal/redact"
)

// defaultMaxLogBytes is the size at which the audit log is rotated to
// <path>.1. Only one backup is kept.
const defaultMaxLogBytes = 10 << 20

// outcomeDecided marks the follow-up record that carries the user's
// answer to a blocked submission.
const outcomeDecided = "decided"

// ArbitrationEvent is one line of the audit log.
type ArbitrationEvent struct {
	Timestamp  string   `json:"timestamp"`
	ID         string   `json:"id,omitempty"`
	Site       string   `json:"site,omitempty"`
	Signal     string   `json:"signal,omitempty"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason,omitempty"`
	Decision   string   `json:"decision,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Text       string   `json:"text,omitempty"`
	Source     string   `json:"source,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type AuditLogger struct {
	path     string
	maxBytes int64
	source   string

	mu   sync.Mutex
	file *os.File
	size int64
}

func New(path string) (*AuditLogger, error) {
	l := &AuditLogger{path: path, maxBytes: defaultMaxLogBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	if l.size >= l.maxBytes {
		if err := l.rotate(); err != nil {
			_ = l.file.Close()
			return nil, err
		}
	}
	return l, nil
}

// WithSource tags every event written through Record, e.g. "watch" or
// "check".
func (l *AuditLogger) WithSource(source string) *AuditLogger {
	l.mu.Lock()
	l.source = source
	l.mu.Unlock()
	return l
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	l.file = file
	l.size = info.Size()
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing audit log: %w", err)
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("rotating audit log: %w", err)
	}
	return l.open()
}

func (l *AuditLogger) Log(event ArbitrationEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}

	// Redact sensitive data before logging
	event.Text = redact.Redact(event.Text)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if l.size > 0 && l.size+int64(len(data)) > l.maxBytes {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

// Record implements guard.Auditor. Write errors are dropped; auditing
// never affects the page.
func (l *AuditLogger) Record(r guard.Report) {
	l.mu.Lock()
	source := l.source
	l.mu.Unlock()

	outcome := r.Outcome.String()
	if r.Decision != "" && r.Outcome == guard.OutcomeIgnored {
		outcome = outcomeDecided
	}
	event := ArbitrationEvent{
		ID:       r.ID,
		Site:     r.Site,
		Outcome:  outcome,
		Reason:   string(r.Reason),
		Decision: r.Decision,
		Text:     r.Text,
		Source:   source,
		Error:    r.Error,
	}
	if !r.At.IsZero() {
		event.Timestamp = r.At.UTC().Format(time.RFC3339)
	}
	if r.Signal != 0 {
		event.Signal = r.Signal.String()
	}
	for _, c := range r.Categories {
		event.Categories = append(event.Categories, string(c))
	}
	_ = l.Log(event)
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// ReadEvents reads every parseable line of the audit log at path.
// Malformed lines are skipped.
func ReadEvents(path string) ([]ArbitrationEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeEvents(f)
}

func DecodeEvents(r io.Reader) ([]ArbitrationEvent, error) {
	var events []ArbitrationEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev ArbitrationEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return events, err
	}
	return events, nil
}
