package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
)

// encodeSnapshot serializes an actor as snappy compressed JSON.
func encodeSnapshot(st *actor.State) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actor %s: %w", st.ID, err)
	}
	return snappy.Encode(nil, raw), nil
}

// decodeSnapshot reverses encodeSnapshot.
func decodeSnapshot(data []byte) (*actor.State, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	var st actor.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &st, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}
