// Package audit records every policy decision and claim transition as a
// hash-chained JSON event. Claims are never physically deleted, so the chain
// is the tamper evidence for adjudication history.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventDecision EventType = "DECISION"
	EventMutation EventType = "MUTATION"
	EventSystem   EventType = "SYSTEM"
)

// Event is one audit record. Hash covers the RFC 8785 canonical form of the
// event with Hash blanked, concatenated with the previous event's hash.
type Event struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Outcome   string         `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// Recorder is the interface domain components record through.
type Recorder interface {
	Record(ctx context.Context, actorID string, eventType EventType, action, resource, outcome string, metadata map[string]any) error
}

// Logger implements Recorder, writing one JSON line per event and chaining
// hashes in memory. The zero value is not usable; use NewLogger.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	prevHash string
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() *Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer. Allows
// injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{writer: w}
}

// Record implements Recorder.
func (l *Logger) Record(ctx context.Context, actorID string, eventType EventType, action, resource, outcome string, metadata map[string]any) error {
	if actorID == "" {
		actorID = "anonymous"
	}
	event := Event{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event.PrevHash = l.prevHash
	hash, err := eventHash(event)
	if err != nil {
		return err
	}
	event.Hash = hash

	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := l.writer.Write(append([]byte("AUDIT: "), append(line, '\n')...)); err != nil {
		return err
	}
	l.prevHash = hash
	return nil
}

// eventHash computes SHA-256 over the canonical event with Hash blanked.
func eventHash(event Event) (string, error) {
	event.Hash = ""
	raw, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("audit marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks a chain of events in order: each event's hash must recompute
// and each prev_hash must match its predecessor.
func Verify(events []Event) error {
	prev := ""
	for i, event := range events {
		if event.PrevHash != prev {
			return fmt.Errorf("event %d: prev_hash mismatch", i)
		}
		want, err := eventHash(event)
		if err != nil {
			return err
		}
		if event.Hash != want {
			return fmt.Errorf("event %d: hash mismatch", i)
		}
		prev = event.Hash
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, EventType, string, string, string, map[string]any) error {
	return nil
}

// NewNop returns a Recorder that discards every event.
func NewNop() Recorder {
	return nopRecorder{}
}
