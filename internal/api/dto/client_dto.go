package dto

import (
	"time"

	"github.com/spec-kit/crm-access/internal/domain"
)

// RenameRequest payload for name updates.
type RenameRequest struct {
	Name string `json:"name"`
}

// ClientResponse is the JSON form of a client.
type ClientResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SalesRepID *int64    `json:"sales_rep_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SalesRepResponse is the JSON form of a sales rep profile.
type SalesRepResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewClientResponses converts clients for output.
func NewClientResponses(clients []domain.Client) []ClientResponse {
	out := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, ClientResponse{ID: c.ID, Name: c.Name, SalesRepID: c.SalesRepID, UpdatedAt: c.UpdatedAt})
	}
	return out
}

// NewSalesRepResponses converts sales reps for output.
func NewSalesRepResponses(reps []domain.SalesRep) []SalesRepResponse {
	out := make([]SalesRepResponse, 0, len(reps))
	for _, r := range reps {
		out = append(out, SalesRepResponse{ID: r.ID, Name: r.Name, Email: r.Email})
	}
	return out
}
