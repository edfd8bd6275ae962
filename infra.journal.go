package main

import (
	"context"

	"github.com/boltdb/bolt"
)

var _ Journal = (*boltJournal)(nil)

// Journal keeps the ordered history of lending events.
type Journal interface {
	Append(ctx context.Context, event LendingEvent) error
	List(ctx context.Context, limit int) ([]LendingEvent, error)
}

type boltJournal struct {
	client *bolt.DB
	bucket []byte
}

// NewBoltJournal provides a journal stored into the given bucket.
func NewBoltJournal(client *bolt.DB, bucket string) (Journal, error) {
	if err := EnsureBoltBuckets(client, []byte(bucket)); err != nil {
		return nil, err
	}
	return &boltJournal{client: client, bucket: []byte(bucket)}, nil
}

// Append stores the event under the next bucket sequence.
func (j *boltJournal) Append(_ context.Context, event LendingEvent) error {
	data, err := codec.Marshal(event)
	if err != nil {
		return err
	}
	return j.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(j.bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(int64(seq)), data)
	})
}

// List returns the most recent events, newest first. A limit
// lower than one returns the whole journal.
func (j *boltJournal) List(_ context.Context, limit int) ([]LendingEvent, error) {
	events := []LendingEvent{}
	err := j.client.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(j.bucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(events) >= limit {
				break
			}
			var event LendingEvent
			if err := codec.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
