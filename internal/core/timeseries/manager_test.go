package timeseries

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManager_LookupByAliases(t *testing.T) {
	m := NewManager(ManagerOptions{ApplyCompression: true})
	m.Register(Metadata{TwinID: "sensor1", TrendID: "trend-1", ExternalID: "ext-1", ConnectorID: "conn-1"})

	ts, ok := m.TryGetByTwinID("sensor1")
	require.True(t, ok)
	require.Equal(t, "trend-1", ts.ID())

	tests := []struct {
		name                                    string
		twinID, trendID, externalID, connectorID string
		want                                    string
		wantOK                                  bool
	}{
		{name: "twin id wins", twinID: "sensor1", want: "sensor1", wantOK: true},
		{name: "trend id", trendID: "trend-1", want: "sensor1", wantOK: true},
		{name: "external id", externalID: "ext-1", connectorID: "conn-1", want: "sensor1", wantOK: true},
		{name: "external id on other connector", externalID: "ext-1", connectorID: "conn-2"},
		{name: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ResolveTwinID(tt.twinID, tt.trendID, tt.externalID, tt.connectorID)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestManager_AddPointAndRemoveAfter(t *testing.T) {
	m := NewManager(ManagerOptions{ApplyCompression: true})
	require.True(t, m.AddPoint("a", Number(at(0), 1)))
	require.False(t, m.AddPoint("a", Number(at(1), 1)))
	require.True(t, m.AddPoint("a", Number(at(2), 2)))
	require.True(t, m.AddPoint("b", Number(at(0), 1)))

	require.Equal(t, 2, m.Len())
	all := m.All()
	require.Equal(t, "a", all[0].TwinID)
	require.Equal(t, "b", all[1].TwinID)

	m.RemovePointsAfter(at(0))
	a, _ := m.TryGetByTwinID("a")
	require.Equal(t, 1, a.Count())
}

func TestManager_ConcurrentGetOrAdd(t *testing.T) {
	m := NewManager(ManagerOptions{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.GetOrAdd(fmt.Sprintf("twin-%d", i), "", "")
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 100, m.Len())
}
