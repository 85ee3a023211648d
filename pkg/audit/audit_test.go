package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskeep/campuskeep/pkg/audit"
)

func recordedEvents(t *testing.T, buf *bytes.Buffer) []audit.Event {
	t.Helper()
	var events []audit.Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		jsonPart := strings.TrimPrefix(line, "AUDIT: ")
		var event audit.Event
		require.NoError(t, json.Unmarshal([]byte(jsonPart), &event))
		events = append(events, event)
	}
	return events
}

func TestLogger_Record_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	err := logger.Record(context.Background(), "u1", audit.EventDecision, "claim.decide", "claim/c1", "allow", map[string]any{"event": "approve"})
	require.NoError(t, err)

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "AUDIT: "))

	events := recordedEvents(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].ActorID)
	assert.Equal(t, audit.EventDecision, events[0].Type)
	assert.Equal(t, "claim.decide", events[0].Action)
	assert.Equal(t, "allow", events[0].Outcome)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEmpty(t, events[0].Hash)
	assert.Empty(t, events[0].PrevHash)
}

func TestLogger_AnonymousActor(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	require.NoError(t, logger.Record(context.Background(), "", audit.EventDecision, "claim.submit", "claim", "deny", nil))

	events := recordedEvents(t, &buf)
	assert.Equal(t, "anonymous", events[0].ActorID)
}

func TestLogger_ChainVerifies(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)
	ctx := context.Background()

	require.NoError(t, logger.Record(ctx, "u1", audit.EventMutation, "claim.submit", "claim/c1", "ok", nil))
	require.NoError(t, logger.Record(ctx, "s1", audit.EventDecision, "claim.decide", "claim/c1", "allow", map[string]any{"event": "approve"}))
	require.NoError(t, logger.Record(ctx, "a1", audit.EventDecision, "claim.decide", "claim/c1", "deny", nil))

	events := recordedEvents(t, &buf)
	require.Len(t, events, 3)
	assert.NoError(t, audit.Verify(events))

	// Each event links to its predecessor.
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
	assert.Equal(t, events[1].Hash, events[2].PrevHash)
}

func TestVerify_DetectsTampering(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)
	ctx := context.Background()

	require.NoError(t, logger.Record(ctx, "u1", audit.EventMutation, "claim.submit", "claim/c1", "ok", nil))
	require.NoError(t, logger.Record(ctx, "s1", audit.EventDecision, "claim.decide", "claim/c1", "allow", nil))

	events := recordedEvents(t, &buf)

	tampered := make([]audit.Event, len(events))
	copy(tampered, events)
	tampered[0].Outcome = "deny"
	assert.Error(t, audit.Verify(tampered))

	copy(tampered, events)
	tampered[1].PrevHash = "0000"
	assert.Error(t, audit.Verify(tampered))
}
