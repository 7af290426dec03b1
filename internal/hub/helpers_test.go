package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatroom/internal/logger"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

// recorder is an Outbound that keeps every frame it is given.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (r *recorder) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *recorder) raw() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

func (r *recorder) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, frame := range r.raw() {
		env, err := protocol.Decode(frame)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (r *recorder) ofKind(t *testing.T, kind protocol.MessageType) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range r.envelopes(t) {
		if env.MessageType == kind {
			out = append(out, env)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// panicker blows up on every send.
type panicker struct{}

func (panicker) Send([]byte) error { panic("transport exploded") }

var testClock = protocol.NewNaiveTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

func newTestHub(opts Options) *Hub {
	h := New(opts, logger.Discard())
	h.now = func() protocol.NaiveTime { return testClock }
	return h
}

func strPtr(s string) *string { return &s }

func (r *Registry) registerForTest(id ConnID, out Outbound) error {
	_, err := r.Register(id, out, nil)
	return err
}
