// Package storage provides opaque object storage for submission
// envelopes. The server writes and reads envelope JSON as bytes; it has no
// ability to interpret the contents.
package storage

import "context"

// ObjectStore is the key-value object storage collaborator. Keys follow
// the forms/<formID>/<date>/<id> layout produced by models.NewSubmission.
type ObjectStore interface {
	// Put stores data under key.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object under key, or common.ErrorNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key.
	Delete(ctx context.Context, key string) error
}
