// Package store abstracts the document service behind the analytics
// pipeline: keyed documents with merge-set, create-only-set, atomic
// increment, list-append and set-membership (union) primitives, plus a
// batched write that commits effectively atomically.
//
// The Redis implementation maps a document to a hash and its list/set
// fields to sibling keys; Memory is a mutex-guarded fake for tests.
package store

import (
	"context"
	"errors"
	"net"
	"syscall"

	"portfolio-analytics/model"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Collections holding the two aggregate record kinds.
const (
	CollectionUsers = "users"
	CollectionLinks = "links"
)

// Document field names shared between writers and decoders. Dotted
// prefixes address a single entry inside a map-valued field without
// clobbering sibling entries.
const (
	FieldUserID            = "userId"
	FieldFirstVisit        = "firstVisit"
	FieldLastVisit         = "lastVisit"
	FieldTotalVisits       = "totalVisits"
	FieldDevice            = "device"
	FieldTotalInteractions = "totalInteractions"
	FieldReferrals         = "referrals"
	FieldCommands          = "commands"
	FieldHistory           = "history"

	PrefixInteractions    = "interactions."
	PrefixTopCategories   = "topCategories."
	PrefixTopActions      = "topActions."
	PrefixFavoriteContent = "favoriteContent."

	FieldURLHash          = "urlHash"
	FieldURL              = "url"
	FieldTitle            = "title"
	FieldTotalClicks      = "totalClicks"
	FieldUniqueUsers      = "uniqueUsers"
	FieldAvgClicksPerUser = "avgClicksPerUser"
	FieldFirstClick       = "firstClick"
	FieldLastClick        = "lastClick"
	FieldCreatedAt        = "createdAt"
	FieldUpdatedAt        = "updatedAt"
	FieldClickedBy        = "clickedBy"
)

// DocKey addresses one document within a collection.
type DocKey struct {
	Collection string
	ID         string
}

// UserDoc addresses a user record.
func UserDoc(userID string) DocKey {
	return DocKey{Collection: CollectionUsers, ID: userID}
}

// LinkDoc addresses a URL aggregate record.
func LinkDoc(urlHash string) DocKey {
	return DocKey{Collection: CollectionLinks, ID: urlHash}
}

// Key returns the flat storage key for the document.
func (d DocKey) Key() string {
	return d.Collection + ":" + d.ID
}

// WriteBatch stages field-level operations against one or more documents
// and commits them as a single effectively-atomic write. Operations are
// commutative increments, merges and appends; staging never fails,
// encoding problems surface on Commit.
type WriteBatch interface {
	// MergeSet writes the given fields, leaving sibling fields intact.
	MergeSet(doc DocKey, fields map[string]interface{})
	// SetIfAbsent writes only fields that do not exist yet. Used for
	// create-only fields that must never be overwritten.
	SetIfAbsent(doc DocKey, fields map[string]interface{})
	// Increment atomically adds delta to a numeric field.
	Increment(doc DocKey, field string, delta int64)
	// Append appends a value to a list-valued field.
	Append(doc DocKey, field string, value interface{})
	Commit(ctx context.Context) error
}

// DocumentStore is the persistence surface the analytics pipeline needs.
type DocumentStore interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetAggregate(ctx context.Context, urlHash string) (*model.LinkAggregate, error)
	// UnionAppend adds member to a set-valued field and reports whether
	// it was newly added. Adding a present member is a no-op. The
	// operation is atomic and idempotent, which is what gates
	// unique-user increments under retries and concurrency.
	UnionAppend(ctx context.Context, doc DocKey, field string, member string) (bool, error)
	NewBatch() WriteBatch
	Ping(ctx context.Context) error
}

// IsUnavailable reports whether err is a connectivity/timeout-class
// failure, distinguishing "try again" from "this request was invalid".
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
