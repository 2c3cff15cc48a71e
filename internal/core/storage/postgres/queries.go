package postgres

// SQL for telemetry replay and actor state persistence.

const (
	// querySavePoint inserts one sample. The natural key makes re-sent
	// telemetry idempotent.
	querySavePoint = `
		INSERT INTO telemetry (
			twin_id, trend_id, external_id, connector_id,
			ts, value, is_bool, text_value
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (twin_id, trend_id, external_id, connector_id, ts) DO NOTHING
	`

	// queryPointsPage reads one keyset page of a replay window ordered by
	// (ts, id), so pages never skip or repeat rows with equal timestamps.
	queryPointsPage = `
		SELECT
			id, twin_id, trend_id, external_id, connector_id,
			ts, value, is_bool, text_value
		FROM telemetry
		WHERE ts >= $1
		  AND ts < $2
		  AND (ts, id) > ($3, $4)
		ORDER BY ts ASC, id ASC
		LIMIT $5
	`

	// queryUpsertActorState writes a snapshot only when it is newer than
	// the stored one, so a late flush cannot roll an actor back.
	queryUpsertActorState = `
		INSERT INTO actor_states (
			id, rule_id, version, is_valid, faulted,
			trigger_count, last_timestamp, snapshot, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			rule_id        = EXCLUDED.rule_id,
			version        = EXCLUDED.version,
			is_valid       = EXCLUDED.is_valid,
			faulted        = EXCLUDED.faulted,
			trigger_count  = EXCLUDED.trigger_count,
			last_timestamp = EXCLUDED.last_timestamp,
			snapshot       = EXCLUDED.snapshot,
			updated_at     = EXCLUDED.updated_at
		WHERE actor_states.version < EXCLUDED.version
	`

	// queryDeleteOutputValuesFrom drops intervals the snapshot rewrites.
	queryDeleteOutputValuesFrom = `
		DELETE FROM output_values
		WHERE actor_id = $1
		  AND start_time >= $2
	`

	queryInsertOutputValue = `
		INSERT INTO output_values (
			id, actor_id, start_time, end_time, is_valid, faulted, text, trigger_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	queryLoadActorStates = `SELECT id, snapshot FROM actor_states ORDER BY id ASC`

	queryRangeOutputValues = `
		SELECT start_time, end_time, is_valid, faulted, text, trigger_count
		FROM output_values
		WHERE actor_id = $1
		  AND end_time >= $2
		  AND start_time < $3
		ORDER BY start_time ASC
	`
)
