package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fetcharr/fetcharr/internal/blocklist"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/queue"
	"github.com/fetcharr/fetcharr/internal/throttle"
)

// AddEntry appends a blocklist entry. Duplicate identities are ignored so
// re-adding is a no-op.
func (db *DB) AddEntry(ctx context.Context, e blocklist.Entry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO blocklist (title, indexer, target_id, reason, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.Title, e.Indexer, string(e.TargetID), e.Reason, e.AddedAt)
	if err != nil {
		return fmt.Errorf("inserting blocklist entry: %w", err)
	}
	return nil
}

// ListEntries returns all blocklist entries.
func (db *DB) ListEntries(ctx context.Context) ([]blocklist.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT title, indexer, target_id, reason, added_at FROM blocklist`)
	if err != nil {
		return nil, fmt.Errorf("querying blocklist: %w", err)
	}
	defer rows.Close()

	var entries []blocklist.Entry
	for rows.Next() {
		var e blocklist.Entry
		var targetID string
		if err := rows.Scan(&e.Title, &e.Indexer, &targetID, &e.Reason, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scanning blocklist entry: %w", err)
		}
		e.TargetID = library.TargetID(targetID)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertRecord overwrites the cooldown record for a target.
func (db *DB) UpsertRecord(ctx context.Context, r throttle.Record) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO search_cooldowns (target_id, last_search, next_eligible)
		VALUES (?, ?, ?)
		ON CONFLICT (target_id) DO UPDATE SET
			last_search = excluded.last_search,
			next_eligible = excluded.next_eligible`,
		string(r.TargetID), r.LastSearch, r.NextEligible)
	if err != nil {
		return fmt.Errorf("upserting cooldown record: %w", err)
	}
	return nil
}

// ListRecords returns all cooldown records.
func (db *DB) ListRecords(ctx context.Context) ([]throttle.Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT target_id, last_search, next_eligible FROM search_cooldowns`)
	if err != nil {
		return nil, fmt.Errorf("querying cooldown records: %w", err)
	}
	defer rows.Close()

	var records []throttle.Record
	for rows.Next() {
		var r throttle.Record
		var targetID string
		if err := rows.Scan(&targetID, &r.LastSearch, &r.NextEligible); err != nil {
			return nil, fmt.Errorf("scanning cooldown record: %w", err)
		}
		r.TargetID = library.TargetID(targetID)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveItem upserts one queue item.
func (db *DB) SaveItem(ctx context.Context, item queue.Item) error {
	releaseJSON, err := json.Marshal(item.Release)
	if err != nil {
		return fmt.Errorf("encoding queue item release: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO queue_items (
			id, target_id, state, release_json, warning, error,
			total_bytes, remaining_bytes, output_path,
			added_at, updated_at, last_progress_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			warning = excluded.warning,
			error = excluded.error,
			total_bytes = excluded.total_bytes,
			remaining_bytes = excluded.remaining_bytes,
			output_path = excluded.output_path,
			updated_at = excluded.updated_at,
			last_progress_at = excluded.last_progress_at`,
		item.ID, string(item.TargetID), string(item.State), string(releaseJSON),
		item.Warning, item.Error, item.TotalBytes, item.RemainingBytes,
		item.OutputPath, item.AddedAt, item.UpdatedAt, item.LastProgressAt)
	if err != nil {
		return fmt.Errorf("saving queue item: %w", err)
	}
	return nil
}

// DeleteItem removes one queue item.
func (db *DB) DeleteItem(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting queue item: %w", err)
	}
	return nil
}

// ListItems returns all persisted queue items.
func (db *DB) ListItems(ctx context.Context) ([]queue.Item, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, target_id, state, release_json, warning, error,
			total_bytes, remaining_bytes, output_path,
			added_at, updated_at, last_progress_at
		FROM queue_items`)
	if err != nil {
		return nil, fmt.Errorf("querying queue items: %w", err)
	}
	defer rows.Close()

	var items []queue.Item
	for rows.Next() {
		var item queue.Item
		var targetID, state, releaseJSON string
		if err := rows.Scan(&item.ID, &targetID, &state, &releaseJSON,
			&item.Warning, &item.Error, &item.TotalBytes, &item.RemainingBytes,
			&item.OutputPath, &item.AddedAt, &item.UpdatedAt, &item.LastProgressAt); err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		var rel indexer.Release
		if err := json.Unmarshal([]byte(releaseJSON), &rel); err != nil {
			return nil, fmt.Errorf("decoding queue item release: %w", err)
		}
		item.TargetID = library.TargetID(targetID)
		item.State = queue.State(state)
		item.Release = rel
		items = append(items, item)
	}
	return items, rows.Err()
}

// AddEvent appends one history event.
func (db *DB) AddEvent(ctx context.Context, e history.Event) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO history_events (type, target_id, title, indexer, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.Type), string(e.TargetID), e.Title, e.Indexer, e.Detail, e.At)
	if err != nil {
		return fmt.Errorf("inserting history event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest history events, most recent first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]history.Event, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT type, target_id, title, indexer, detail, at
		FROM history_events ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history events: %w", err)
	}
	defer rows.Close()

	var events []history.Event
	for rows.Next() {
		var e history.Event
		var eventType, targetID string
		if err := rows.Scan(&eventType, &targetID, &e.Title, &e.Indexer, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scanning history event: %w", err)
		}
		e.Type = history.EventType(eventType)
		e.TargetID = library.TargetID(targetID)
		events = append(events, e)
	}
	return events, rows.Err()
}
