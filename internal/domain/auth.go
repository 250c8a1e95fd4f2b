package domain

import "time"

// Identity is the claim set carried inside a session token.
type Identity struct {
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ResourceKind names a resource type subject to ownership scoping.
type ResourceKind string

const (
	ResourceClient      ResourceKind = "client"
	ResourceStakeholder ResourceKind = "stakeholder"
	ResourceSalesRep    ResourceKind = "sales_rep"
)

// ResourceRef points at one ownership-scoped record.
type ResourceRef struct {
	Kind ResourceKind
	ID   int64
}
