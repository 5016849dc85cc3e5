package roles

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// AuditLogger records role enforcement decisions.
type AuditLogger interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	Close() error
}

// AuditEntry is one access decision on a role-restricted route.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Allowed   bool          `json:"allowed"`
	UserID    string        `json:"user_id"`
	Email     string        `json:"email,omitempty"`
	Role      Role          `json:"role"`
	Required  Role          `json:"required_role"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	RequestID string        `json:"request_id,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	ErrorMsg  string        `json:"error,omitempty"`
}

// JSONAuditLogger writes entries as JSON lines from a background goroutine.
type JSONAuditLogger struct {
	writer          io.Writer
	logAllDecisions bool

	entries chan *AuditEntry
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewJSONAuditLogger creates an audit logger. A nil writer means stdout.
// When logAll is false only denials are written.
func NewJSONAuditLogger(w io.Writer, logAll bool) *JSONAuditLogger {
	if w == nil {
		w = os.Stdout
	}
	l := &JSONAuditLogger{
		writer:          w,
		logAllDecisions: logAll,
		entries:         make(chan *AuditEntry, 256),
		closed:          make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// LogDecision queues entry. When the queue is full the entry is written
// synchronously.
func (l *JSONAuditLogger) LogDecision(ctx context.Context, entry *AuditEntry) error {
	if !l.logAllDecisions && entry.Allowed {
		return nil
	}

	select {
	case <-l.closed:
		return io.ErrClosedPipe
	default:
	}

	select {
	case l.entries <- entry:
		return nil
	case <-l.closed:
		return io.ErrClosedPipe
	default:
		return l.write(entry)
	}
}

func (l *JSONAuditLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.entries:
			_ = l.write(entry)
		case <-l.closed:
			for {
				select {
				case entry := <-l.entries:
					_ = l.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *JSONAuditLogger) write(entry *AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return json.NewEncoder(l.writer).Encode(entry)
}

// Close flushes queued entries and stops the writer.
func (l *JSONAuditLogger) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.wg.Wait()
	})
	return nil
}

// MemoryAuditLogger keeps entries in memory.
type MemoryAuditLogger struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

// NewMemoryAuditLogger creates an empty in-memory audit logger.
func NewMemoryAuditLogger() *MemoryAuditLogger {
	return &MemoryAuditLogger{}
}

// LogDecision stores a copy of entry.
func (l *MemoryAuditLogger) LogDecision(ctx context.Context, entry *AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

// Entries returns the stored entries.
func (l *MemoryAuditLogger) Entries() []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Close does nothing.
func (l *MemoryAuditLogger) Close() error { return nil }
