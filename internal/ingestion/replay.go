package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// FileReplayer feeds events from a JSONL export into the engine loop. Used
// for backfills: an indexer dump of historical chain events can be replayed
// through the exact same parse-and-process path as live NATS traffic.
//
// Each line is one record:
//
//	{"event_type":"Deposit","payload":{...}}
//
// where payload matches the wire format ParseRawEvent expects.
type FileReplayer struct {
	eventChan chan<- RawEvent
}

type replayRecord struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func NewFileReplayer(eventChan chan<- RawEvent) *FileReplayer {
	return &FileReplayer{eventChan: eventChan}
}

// ReplayFile streams every record of path into the event channel in file
// order. The engine's ordering validator still applies, so an unsorted dump
// fails fast instead of corrupting state.
func (fr *FileReplayer) ReplayFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	n, err := fr.replay(ctx, f)
	if err != nil {
		return n, fmt.Errorf("replay %s: %w", path, err)
	}
	logger.Info().Str("path", path).Int("events", n).Msg("file replay complete")
	return n, nil
}

func (fr *FileReplayer) replay(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var rec replayRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.EventType == "" {
			return count, fmt.Errorf("line %d: missing event_type", line)
		}

		payload := make([]byte, len(rec.Payload))
		copy(payload, rec.Payload)

		raw := RawEvent{
			Subject:   "replay",
			EventType: rec.EventType,
			Data:      payload,
			AckFunc:   func() {},
			NakFunc:   func() {},
		}

		select {
		case fr.eventChan <- raw:
			count++
		case <-ctx.Done():
			return count, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("line %d: %w", line, err)
	}
	return count, nil
}
