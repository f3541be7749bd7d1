package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

const maxPooledBatchCapacity = 4096

type decodeScratch struct {
	events []domain.Event
}

var decodeScratchPool = sync.Pool{
	New: func() any {
		return &decodeScratch{events: make([]domain.Event, 0, 16)}
	},
}

// decodeEventPayload auto-detects batch vs single webhook payload.
// Params: raw JSON bytes with one event object or a non-empty array.
// Returns: validated, normalized events.
func decodeEventPayload(raw []byte) ([]domain.Event, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}
	if trimmed[0] != '[' {
		event, err := domain.DecodeEvent(raw)
		if err != nil {
			return nil, err
		}
		return []domain.Event{event}, nil
	}

	scratch := acquireDecodeScratch()
	defer releaseDecodeScratch(scratch)
	if err := json.Unmarshal(raw, &scratch.events); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	if len(scratch.events) == 0 {
		return nil, errors.New("empty event batch")
	}

	events := make([]domain.Event, 0, len(scratch.events))
	for i, event := range scratch.events {
		normalized, err := domain.NormalizeEvent(event)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, normalized)
	}
	return events, nil
}

func acquireDecodeScratch() *decodeScratch {
	return decodeScratchPool.Get().(*decodeScratch)
}

func releaseDecodeScratch(scratch *decodeScratch) {
	if cap(scratch.events) > maxPooledBatchCapacity {
		scratch.events = make([]domain.Event, 0, 16)
	} else {
		scratch.events = scratch.events[:0]
	}
	decodeScratchPool.Put(scratch)
}
