package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// QueueItem is one durable work item. Items survive process restarts
// and are deleted only after their handler has run.
type QueueItem struct {
	ID          int64
	Queue       string
	Payload     string
	AvailableAt int64
	EnqueuedAt  int64
}

// EnqueueItem records a work item that becomes eligible at availableAt
// (unix seconds).
func (db *DB) EnqueueItem(queue, payload string, availableAt, enqueuedAt int64) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO queue_items (queue, payload, available_at, enqueued_at)
		VALUES (?, ?, ?, ?)
	`, queue, payload, availableAt, enqueuedAt)
	if err != nil {
		return 0, fmt.Errorf("store: enqueue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: enqueue item id: %w", err)
	}
	return id, nil
}

// NextItem returns the earliest eligible item of a queue, or nil when
// none is eligible yet. Eligibility order is (available_at, id).
func (db *DB) NextItem(queue string, now int64) (*QueueItem, error) {
	var it QueueItem
	err := db.conn.QueryRow(`
		SELECT id, queue, payload, available_at, enqueued_at
		FROM queue_items
		WHERE queue = ? AND available_at <= ?
		ORDER BY available_at, id
		LIMIT 1
	`, queue, now).Scan(&it.ID, &it.Queue, &it.Payload, &it.AvailableAt, &it.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: next item: %w", err)
	}
	return &it, nil
}

// NextAvailableAt returns the earliest availability time of any item in
// the queue; ok is false when the queue is empty.
func (db *DB) NextAvailableAt(queue string) (int64, bool, error) {
	var at int64
	err := db.conn.QueryRow(`
		SELECT available_at FROM queue_items WHERE queue = ? ORDER BY available_at, id LIMIT 1
	`, queue).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: next available: %w", err)
	}
	return at, true, nil
}

// DeleteItem removes a delivered item.
func (db *DB) DeleteItem(id int64) error {
	if _, err := db.conn.Exec(`DELETE FROM queue_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete item: %w", err)
	}
	return nil
}

// CountItems returns the number of pending items in a queue.
func (db *DB) CountItems(queue string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM queue_items WHERE queue = ?`, queue).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count items: %w", err)
	}
	return n, nil
}
