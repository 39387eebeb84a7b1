package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	stats Stats
}

func (f *fakeProvider) CaptureStats() Stats { return f.stats }

type recordingExporter struct {
	mu     sync.Mutex
	got    []Stats
	closed bool
}

func (r *recordingExporter) Export(s Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
	return nil
}

func (r *recordingExporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingExporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestManagerExportsOnTick(t *testing.T) {
	provider := &fakeProvider{stats: Stats{SeenEvents: 42}}
	exp := &recordingExporter{}
	m := NewManager(provider, 10*time.Millisecond, exp)

	m.Start()
	require.Eventually(t, func() bool { return exp.count() >= 1 }, time.Second, 5*time.Millisecond)
	m.Stop()

	assert.True(t, exp.closed)
}

func TestManagerDisabledWithZeroInterval(t *testing.T) {
	provider := &fakeProvider{}
	exp := &recordingExporter{}
	m := NewManager(provider, 0, exp)

	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	assert.Equal(t, 0, exp.count())
}

// TestFreeportAvailable confirms the throwaway-listener helper for picking
// an ephemeral port actually returns a usable port, without this package
// owning a real AMQP/Elasticsearch broker.
func TestFreeportAvailable(t *testing.T) {
	port, err := freeport.GetFreePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}
