package pipeline

import (
	"context"

	"github.com/rcomino/gabriel-messenger/internal/publication"
)

// Named is implemented by every module collaborator. Name is the module name
// (e.g. "rss"), not the instance name.
type Named interface {
	Name() string
}

// Pollable is the per-module half of a receiver.
//
// Poll returns the transactions currently published by the source, in source
// order. seen is a read-only view of the identifiers already delivered, so a
// source may skip expensive detail fetches for known items. Transactions whose
// id is in seen are dropped by the caller regardless.
type Pollable interface {
	Named
	Poll(ctx context.Context, seen *SeenSet) ([]publication.Transaction, error)
}

// Deliverable is the per-module half of a sender.
type Deliverable interface {
	Named
	Deliver(ctx context.Context, channel string, p *publication.Publication) error
}

// Connector is implemented by destinations that need a session before delivering.
type Connector interface {
	Connect(ctx context.Context) error
}

// Stoppable is implemented by collaborators holding resources.
type Stoppable interface {
	Close(ctx context.Context) error
}

// IdentifierStore persists delivered transaction ids per source.
type IdentifierStore interface {
	LoadAll(ctx context.Context, source string) ([]string, error)
	Create(ctx context.Context, source, id string) error
}
