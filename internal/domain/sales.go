package domain

import "time"

// SalesRep is the sales profile linked to a user account by email.
type SalesRep struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Client is a customer account owned by at most one sales rep.
type Client struct {
	ID         int64
	Name       string
	SalesRepID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stakeholder is a contact person belonging to a client.
type Stakeholder struct {
	ID        int64
	ClientID  int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
