package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
)

func faultedState(t *testing.T, start time.Time) *actor.State {
	t.Helper()
	st := actor.New("ahu1_high-sat", "high-sat")
	st.Apply(start, actor.ValidOutput("ok"))
	st.Apply(start.Add(5*time.Minute), actor.FaultedOutput("too hot"))
	require.Len(t, st.OutputValues.Points, 2)
	return st
}

func TestActorStateAdapter_Flush(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewActorStateAdapter(db)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := faultedState(t, start)

	mock.ExpectBegin()
	upsert := mock.ExpectPrepare(regexp.QuoteMeta(queryUpsertActorState))
	del := mock.ExpectPrepare(regexp.QuoteMeta(queryDeleteOutputValuesFrom))
	ins := mock.ExpectPrepare(regexp.QuoteMeta(queryInsertOutputValue))

	upsert.ExpectExec().WithArgs(
		st.ID,
		st.RuleID,
		st.Version,
		true,
		true,
		st.TriggerCount,
		st.Timestamp,
		sqlmock.AnyArg(),
		sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(0, 1))
	del.ExpectExec().WithArgs(st.ID, start).WillReturnResult(sqlmock.NewResult(0, 3))
	for _, ov := range st.OutputValues.Points {
		ins.ExpectExec().WithArgs(
			outputValueID(st.ID, ov.StartTime).String(),
			st.ID,
			ov.StartTime,
			ov.EndTime,
			ov.IsValid,
			ov.Faulted,
			ov.Text,
			ov.TriggerCount,
		).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, adapter.Flush(context.Background(), []*actor.State{st}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActorStateAdapter_FlushSkipsStaleSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewActorStateAdapter(db)
	st := faultedState(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	upsert := mock.ExpectPrepare(regexp.QuoteMeta(queryUpsertActorState))
	mock.ExpectPrepare(regexp.QuoteMeta(queryDeleteOutputValuesFrom))
	mock.ExpectPrepare(regexp.QuoteMeta(queryInsertOutputValue))
	upsert.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, adapter.Flush(context.Background(), []*actor.State{st}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActorStateAdapter_FlushRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewActorStateAdapter(db)
	st := faultedState(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	upsert := mock.ExpectPrepare(regexp.QuoteMeta(queryUpsertActorState))
	mock.ExpectPrepare(regexp.QuoteMeta(queryDeleteOutputValuesFrom))
	mock.ExpectPrepare(regexp.QuoteMeta(queryInsertOutputValue))
	upsert.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = adapter.Flush(context.Background(), []*actor.State{st})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActorStateAdapter_FlushEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewActorStateAdapter(db).Flush(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActorStateAdapter_LoadActors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := faultedState(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	snapshot, err := encodeSnapshot(st)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadActorStates)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "snapshot"}).AddRow(st.ID, snapshot))

	loaded, err := NewActorStateAdapter(db).LoadActors(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, st.ID, loaded[0].ID)
	require.Equal(t, st.Version, loaded[0].Version)
	require.Equal(t, st.TriggerCount, loaded[0].TriggerCount)
	require.True(t, loaded[0].ValueBool)
	require.Len(t, loaded[0].OutputValues.Points, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActorStateAdapter_LoadActorsCorruptSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadActorStates)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "snapshot"}).AddRow("broken", []byte("not snappy")))

	_, err = NewActorStateAdapter(db).LoadActors(context.Background())
	require.ErrorContains(t, err, "actor broken")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActorStateAdapter_OutputValuesOpenEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"start_time", "end_time", "is_valid", "faulted", "text", "trigger_count"}).
		AddRow(start, start.Add(10*time.Minute), true, true, "too hot", 3)

	mock.ExpectQuery(regexp.QuoteMeta(queryRangeOutputValues)).
		WithArgs("ahu1_high-sat", start, farFuture).
		WillReturnRows(rows)

	values, err := NewActorStateAdapter(db).OutputValues(context.Background(), "ahu1_high-sat", start, time.Time{})
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.True(t, values[0].Faulted)
	require.Equal(t, 3, values[0].TriggerCount)
	require.Equal(t, 10*time.Minute, values[0].EndTime.Sub(values[0].StartTime))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutputValueID_Stable(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, outputValueID("a", start), outputValueID("a", start.In(time.FixedZone("x", 3600))))
	require.NotEqual(t, outputValueID("a", start), outputValueID("b", start))
}
