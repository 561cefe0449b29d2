package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/domain"
	"github.com/goautomatik/router-server/internal/threat"
)

// fixedProbe devolve sempre a mesma latência, falhando para IDs marcados
type fixedProbe struct {
	latency time.Duration
	failIDs map[string]bool
}

func (p *fixedProbe) Ping(_ context.Context, node *domain.NodeHealthMetrics) (time.Duration, error) {
	if p.failIDs[node.NodeID] {
		return 0, errors.New("probe timeout")
	}
	return p.latency, nil
}

func newTestRegistry(t *testing.T, source Source, probe Probe) (*Registry, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	threats := threat.NewProvider(zap.NewNop(), mock, time.Hour)
	return New(source, probe, threats, zap.NewNop(), mock, time.Minute), mock
}

func staticNodes(now time.Time) []domain.NodeHealthMetrics {
	return []domain.NodeHealthMetrics{
		{NodeID: "node-de", Location: "DE-FRANKFURT", Reputation: 90, UptimePct: 99, LastHeartbeat: now, IsActive: true},
		{NodeID: "node-us", Location: "US-NEWYORK", Reputation: 95, UptimePct: 98, LastHeartbeat: now, IsActive: true},
		{NodeID: "node-ru", Location: "RU-MOSCOW", Reputation: 80, UptimePct: 97, LastHeartbeat: now, IsActive: true},
	}
}

func TestFetchAllFillsThreatLevels(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	reg, _ := newTestRegistry(t, source, &fixedProbe{latency: 50 * time.Millisecond})

	nodes, err := reg.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	byID := make(map[string]domain.NodeHealthMetrics)
	for _, n := range nodes {
		byID[n.NodeID] = n
	}
	assert.Equal(t, 1, byID["node-de"].ThreatLevel)
	assert.Equal(t, 2, byID["node-us"].ThreatLevel)
	assert.Equal(t, 8, byID["node-ru"].ThreatLevel)
}

func TestFetchAllDeactivatesStaleHeartbeat(t *testing.T) {
	mock := clock.NewMock()
	nodes := staticNodes(mock.Now())
	// heartbeat 400s atrás, acima do limiar de 300s
	nodes[0].LastHeartbeat = mock.Now().Add(-400 * time.Second)
	source := &StaticSource{Nodes: nodes}
	reg, _ := newTestRegistry(t, source, &fixedProbe{latency: 50 * time.Millisecond})

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)

	stale := reg.GetByID("node-de")
	require.NotNil(t, stale)
	assert.False(t, stale.IsActive)
	assert.Len(t, reg.GetActive(), 2)
}

func TestFetchAllPreservesMeasuredLatency(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	reg, _ := newTestRegistry(t, source, &fixedProbe{latency: 42 * time.Millisecond})

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)
	reg.RefreshHealth(context.Background())
	require.Equal(t, 42.0, reg.GetByID("node-de").LatencyMs)

	// a fonte não carrega latência; o valor medido sobrevive ao refetch
	_, err = reg.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, reg.GetByID("node-de").LatencyMs)
}

func TestRefreshHealthIsolatesProbeFailures(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	probe := &fixedProbe{latency: 30 * time.Millisecond, failIDs: map[string]bool{"node-us": true}}
	reg, _ := newTestRegistry(t, source, probe)

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)
	reg.RefreshHealth(context.Background())

	// a falha de node-us não impede a medição dos demais
	assert.Equal(t, 30.0, reg.GetByID("node-de").LatencyMs)
	assert.Equal(t, 0.0, reg.GetByID("node-us").LatencyMs)
	assert.True(t, reg.GetByID("node-us").IsActive)
}

func TestRefreshHealthDeactivatesAfterSilence(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	reg, clk := newTestRegistry(t, source, &fixedProbe{latency: 30 * time.Millisecond})

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reg.GetActive(), 3)

	clk.Add(301 * time.Second)
	reg.RefreshHealth(context.Background())
	assert.Empty(t, reg.GetActive())
	assert.Equal(t, 3, reg.NodeCount())
}

func TestGetActiveSortedByReputation(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	reg, _ := newTestRegistry(t, source, &fixedProbe{latency: 30 * time.Millisecond})

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)

	active := reg.GetActive()
	require.Len(t, active, 3)
	assert.Equal(t, "node-us", active[0].NodeID)
	assert.Equal(t, "node-de", active[1].NodeID)
	assert.Equal(t, "node-ru", active[2].NodeID)
}

func TestGetByLocationPrefix(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	reg, _ := newTestRegistry(t, source, &fixedProbe{latency: 30 * time.Millisecond})

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, reg.GetByLocation("DE"), 1)
	assert.Len(t, reg.GetByLocation("DE-FRANKFURT"), 1)
	assert.Empty(t, reg.GetByLocation("BR"))
}

func TestAverages(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	reg, _ := newTestRegistry(t, source, &fixedProbe{latency: 60 * time.Millisecond})

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)
	reg.RefreshHealth(context.Background())

	assert.Equal(t, 60.0, reg.AverageLatency())
	assert.InDelta(t, 98.0, reg.AverageUptime(), 0.01)
}

func TestGetByIDUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t, &StaticSource{}, &fixedProbe{})
	assert.Nil(t, reg.GetByID("missing"))
}

// readingProbe consulta o registro durante o ping, como fazem checagens
// que comparam o nó com o resto da frota
type readingProbe struct {
	reg     *Registry
	latency time.Duration
	reads   int
}

func (p *readingProbe) Ping(_ context.Context, _ *domain.NodeHealthMetrics) (time.Duration, error) {
	p.reads += len(p.reg.GetActive())
	return p.latency, nil
}

func TestRefreshHealthAllowsReadsDuringProbes(t *testing.T) {
	mock := clock.NewMock()
	source := &StaticSource{Nodes: staticNodes(mock.Now())}
	probe := &readingProbe{latency: 25 * time.Millisecond}
	reg, _ := newTestRegistry(t, source, probe)
	probe.reg = reg

	_, err := reg.FetchAll(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		reg.RefreshHealth(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RefreshHealth blocked registry reads while probing")
	}

	assert.Equal(t, 9, probe.reads)
	for _, node := range reg.GetActive() {
		assert.Equal(t, 25.0, node.LatencyMs)
	}
}
