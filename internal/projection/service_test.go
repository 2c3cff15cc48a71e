package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
	httperr "github.com/aevon-lab/rules-engine/internal/core/errors"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
	"github.com/aevon-lab/rules-engine/internal/execution"
	storagemocks "github.com/aevon-lab/rules-engine/internal/mocks/storage"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

// fixture has one actor that was faulted from 08:30 to 09:30 and one
// healthy actor of another rule.
func fixture(t *testing.T, history HistoryReader) *Service {
	t.Helper()

	store := execution.NewStore()

	hot := actor.New("ahu1_high-sat", "high-sat")
	hot.Series("result").AddPoint(timeseries.Bool(at(120), false), true)
	hot.Apply(at(0), actor.ValidOutput("ok"))
	hot.Apply(at(30), actor.FaultedOutput("too hot"))
	hot.Apply(at(90), actor.ValidOutput("ok"))
	hot.Apply(at(120), actor.ValidOutput("ok"))
	store.Put(hot.Clone())

	fine := actor.New("ahu2_deviation", "deviation")
	fine.Apply(at(0), actor.ValidOutput("ok"))
	store.Put(fine.Clone())

	mgr := timeseries.NewManager(timeseries.ManagerOptions{})
	mgr.Register(timeseries.Metadata{TwinID: "ahu1-sat", TrendID: "trend-sat", Unit: "degC"})
	for i, v := range []float64{20, 21, 23} {
		mgr.AddPoint("ahu1-sat", timeseries.Number(at(5*i), v))
	}

	return NewService(store, mgr, history)
}

func TestService_ListActors(t *testing.T) {
	svc := fixture(t, nil)
	faulted := true
	healthy := false

	all := svc.ListActors(ActorListRequest{})
	require.Len(t, all, 2)
	require.Equal(t, "ahu1_high-sat", all[0].ID)
	require.False(t, all[0].Faulted)
	require.Equal(t, int64(4), all[0].TriggerCount)
	require.Equal(t, at(90), all[0].LastChangedOutput)

	require.Len(t, svc.ListActors(ActorListRequest{Rule: "deviation"}), 1)
	require.Empty(t, svc.ListActors(ActorListRequest{Faulted: &faulted}))
	require.Len(t, svc.ListActors(ActorListRequest{Faulted: &healthy}), 2)
}

func TestService_QueryActor_Rollups(t *testing.T) {
	svc := fixture(t, nil)

	resp, err := svc.QueryActor(context.Background(), ActorQueryRequest{ID: "ahu1_high-sat", Granularity: "1h"})
	require.NoError(t, err)
	require.Len(t, resp.OutputValues, 3)
	require.Contains(t, resp.Variables, "result")

	require.Len(t, resp.Buckets, 2)
	first, second := resp.Buckets[0], resp.Buckets[1]
	require.Equal(t, at(0), first.WindowStart)
	require.Equal(t, "3600", first.ValidSeconds.String())
	require.Equal(t, "1800", first.FaultedSeconds.String())
	require.Equal(t, "0.5", first.FaultedRatio.String())
	require.Equal(t, 1, first.Faults)
	require.Equal(t, "1800", second.FaultedSeconds.String())
	require.Equal(t, 0, second.Faults)

	total, err := svc.QueryActor(context.Background(), ActorQueryRequest{ID: "ahu1_high-sat", Granularity: "total"})
	require.NoError(t, err)
	require.Len(t, total.Buckets, 1)
	require.Equal(t, "7200", total.Buckets[0].ValidSeconds.String())
	require.Equal(t, "3600", total.Buckets[0].FaultedSeconds.String())

	day, err := svc.QueryActor(context.Background(), ActorQueryRequest{ID: "ahu1_high-sat", Granularity: "1d"})
	require.NoError(t, err)
	require.Len(t, day.Buckets, 1)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), day.Buckets[0].WindowStart)
}

func TestService_QueryActor_Validation(t *testing.T) {
	svc := fixture(t, nil)

	tests := []struct {
		name    string
		req     ActorQueryRequest
		wantErr error
	}{
		{name: "unknown actor", req: ActorQueryRequest{ID: "nope"}, wantErr: httperr.ErrNotFound},
		{name: "end before start", req: ActorQueryRequest{ID: "ahu1_high-sat", Start: at(60), End: at(0)}, wantErr: ErrInvalidQuery},
		{name: "bad granularity", req: ActorQueryRequest{ID: "ahu1_high-sat", Granularity: "1w"}, wantErr: ErrInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.QueryActor(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_QueryActor_UsesHistoryForRanges(t *testing.T) {
	history := storagemocks.NewActorStore(t)
	persisted := []actor.OutputValue{{StartTime: at(-600), EndTime: at(-500), IsValid: true, Faulted: true, Text: "old", TriggerCount: 9}}
	history.EXPECT().
		OutputValues(mock.Anything, "ahu1_high-sat", at(-720), at(0)).
		Return(persisted, nil).
		Once()
	history.EXPECT().
		OutputValues(mock.Anything, "ahu1_high-sat", at(-1440), time.Time{}).
		Return(nil, errors.New("db down")).
		Once()

	svc := fixture(t, history)

	resp, err := svc.QueryActor(context.Background(), ActorQueryRequest{ID: "ahu1_high-sat", Start: at(-720), End: at(0)})
	require.NoError(t, err)
	require.Equal(t, persisted, resp.OutputValues)

	_, err = svc.QueryActor(context.Background(), ActorQueryRequest{ID: "ahu1_high-sat", Start: at(-1440)})
	require.ErrorContains(t, err, "db down")
}

func TestService_QuerySeries(t *testing.T) {
	svc := fixture(t, nil)

	resp, err := svc.QuerySeries(SeriesQueryRequest{TwinID: "ahu1-sat"})
	require.NoError(t, err)
	require.Equal(t, "trend-sat", resp.TrendID)
	require.Equal(t, "degC", resp.Unit)
	require.Len(t, resp.Points, 3)
	require.Equal(t, int64(3), resp.Stats.TotalValuesProcessed)

	ranged, err := svc.QuerySeries(SeriesQueryRequest{TwinID: "ahu1-sat", Start: at(5), End: at(5)})
	require.NoError(t, err)
	require.Len(t, ranged.Points, 1)
	require.Equal(t, 21.0, ranged.Points[0].Value)

	_, err = svc.QuerySeries(SeriesQueryRequest{TwinID: "nope"})
	require.ErrorIs(t, err, httperr.ErrNotFound)
}
