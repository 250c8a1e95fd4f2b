package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-access/internal/api/dto"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/repository"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

// ClientDirectory serves CRM records to already-authorized callers.
type ClientDirectory interface {
	ListClients(ctx context.Context, filter repository.ClientFilter) ([]domain.Client, error)
	RenameClient(ctx context.Context, id int64, name string) error
	RenameStakeholder(ctx context.Context, id int64, name string) error
	ListSalesReps(ctx context.Context, limit, offset int) ([]domain.SalesRep, error)
	RenameSalesRep(ctx context.Context, id int64, name string) error
}

// ClientsHandler exposes the protected CRM endpoints.
type ClientsHandler struct {
	directory ClientDirectory
}

// NewClientsHandler constructs handler.
func NewClientsHandler(directory ClientDirectory) *ClientsHandler {
	return &ClientsHandler{directory: directory}
}

// ListClients handles GET /api/clients.
func (h *ClientsHandler) ListClients(c *fiber.Ctx) error {
	filter := repository.ClientFilter{
		Search: c.Query("search"),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if raw := c.Query("sales_rep_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperrors.NewValidationError("invalid sales_rep_id", nil)
		}
		filter.SalesRepID = &id
	}

	clients, err := h.directory.ListClients(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewClientResponses(clients)})
}

// RenameClient handles PATCH /api/clients/:id.
func (h *ClientsHandler) RenameClient(c *fiber.Ctx) error {
	return h.rename(c, h.directory.RenameClient)
}

// RenameStakeholder handles PATCH /api/stakeholders/:id.
func (h *ClientsHandler) RenameStakeholder(c *fiber.Ctx) error {
	return h.rename(c, h.directory.RenameStakeholder)
}

// ListSalesReps handles GET /api/sales-reps.
func (h *ClientsHandler) ListSalesReps(c *fiber.Ctx) error {
	reps, err := h.directory.ListSalesReps(c.UserContext(), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSalesRepResponses(reps)})
}

// RenameSalesRep handles PATCH /api/sales-reps/:id.
func (h *ClientsHandler) RenameSalesRep(c *fiber.Ctx) error {
	return h.rename(c, h.directory.RenameSalesRep)
}

func (h *ClientsHandler) rename(c *fiber.Ctx, update func(context.Context, int64, string) error) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid id", nil)
	}
	var req dto.RenameRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := update(c.UserContext(), id, req.Name); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
