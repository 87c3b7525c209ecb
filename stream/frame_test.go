package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickrewind/agentcore/core"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	ev := core.StepStartEvent(1, "look up the answer")
	ev.Sequence = 3
	require.NoError(t, enc.Encode(EventFrame("sess-1", ev)))
	require.NoError(t, enc.Encode(HeartbeatFrame()))

	frames, err := NewDecoder().Feed(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, FrameEvent, frames[0].Type)
	assert.Equal(t, "sess-1", frames[0].SessionID)
	require.NotNil(t, frames[0].Event)
	assert.Equal(t, uint64(3), frames[0].Event.Sequence)
	assert.Equal(t, core.EventStepStart, frames[0].Event.Type)

	assert.Equal(t, FrameHeartbeat, frames[1].Type)
	assert.Nil(t, frames[1].Event)
}

func TestDecoderFragmentedInput(t *testing.T) {
	ev := core.PlanningStartEvent()
	ev.Sequence = 1
	encoded, err := Marshal(EventFrame("sess-1", ev))
	require.NoError(t, err)

	dec := NewDecoder()

	// Deliver the frame one byte at a time; only the final byte completes it.
	for i := 0; i < len(encoded)-1; i++ {
		frames, err := dec.Feed(encoded[i : i+1])
		require.NoError(t, err)
		assert.Empty(t, frames)
	}

	frames, err := dec.Feed(encoded[len(encoded)-1:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameEvent, frames[0].Type)
	assert.Zero(t, dec.Pending())
}

func TestDecoderBatchedFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 1; i <= 3; i++ {
		ev := core.StepStartEvent(i, "step")
		ev.Sequence = uint64(i)
		require.NoError(t, enc.Encode(EventFrame("sess-1", ev)))
	}

	// One Feed call carrying three frames plus the head of a fourth.
	partial := append(buf.Bytes(), []byte(`{"type":"heart`)...)
	dec := NewDecoder()
	frames, err := dec.Feed(partial)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Event.Sequence)
	}
	assert.Positive(t, dec.Pending())

	frames, err = dec.Feed([]byte("beat\"}\n"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameHeartbeat, frames[0].Type)
}

func TestDecoderMalformedFrame(t *testing.T) {
	dec := NewDecoder()
	frames, err := dec.Feed([]byte("{not json}\n"))
	assert.Empty(t, frames)
	require.Error(t, err)
	assert.Equal(t, core.KindTransport, core.KindOf(err))
}

func TestDecoderOversizedFrame(t *testing.T) {
	dec := NewDecoder()
	_, err := dec.Feed(bytes.Repeat([]byte("a"), MaxFrameSize+1))
	require.Error(t, err)
	assert.Equal(t, core.KindTransport, core.KindOf(err))
}
