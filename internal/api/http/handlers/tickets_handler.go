package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/office-hours/internal/api/dto"
	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/domain"
	"github.com/spec-kit/office-hours/internal/service"
	apperrors "github.com/spec-kit/office-hours/pkg/util/errorutil"
)

// TicketsHandler manages office hours ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
	similar *service.SimilarService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, similarService *service.SimilarService) *TicketsHandler {
	return &TicketsHandler{service: ticketService, similar: similarService}
}

// CreateTicket POST /api/office-hours/ticket.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.OfficeHoursID <= 0 {
		return apperrors.NewValidationError("office_hours_id required", map[string]any{"field": "office_hours_id"})
	}
	desc, field := req.Description()
	if field != "" {
		return apperrors.NewValidationError("invalid description fields for ticket type",
			map[string]any{"field": field, "type": req.Type})
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal.UserID, service.TicketCreateInput{
		OfficeHoursID: req.OfficeHoursID,
		Description:   desc,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketView(ticket)})
}

// GetTicket GET /api/office-hours/ticket/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ticketID, err := principalAndTicket(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), principal.UserID, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketView(ticket)})
}

// CallTicket PUT /api/office-hours/ticket/:id/call.
func (h *TicketsHandler) CallTicket(c *fiber.Ctx) error {
	principal, ticketID, err := principalAndTicket(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.CallTicket(c.UserContext(), principal.UserID, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketView(ticket)})
}

// CancelTicket PUT /api/office-hours/ticket/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	principal, ticketID, err := principalAndTicket(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.CancelTicket(c.UserContext(), principal.UserID, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketView(ticket)})
}

// CloseTicket PUT /api/office-hours/ticket/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, ticketID, err := principalAndTicket(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CloseTicket(c.UserContext(), principal.UserID, ticketID, service.TicketCloseInput{
		Resolution: domain.Resolution{
			MeetingSummary:    req.MeetingSummary,
			SolutionsUsed:     req.SolutionsUsed,
			ConceptsForReview: req.ConceptsForReview,
		},
		HaveConcerns: req.HaveConcerns,
		CallerNotes:  req.CallerNotes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketView(ticket)})
}

// FindSimilar POST /api/office-hours/ticket/:id/similar.
func (h *TicketsHandler) FindSimilar(c *fiber.Ctx) error {
	principal, ticketID, err := principalAndTicket(c)
	if err != nil {
		return err
	}
	tickets, err := h.similar.FindSimilar(c.UserContext(), principal.UserID, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"similar_tickets": dto.NewTicketViews(tickets)}})
}

// ListQueue GET /api/office-hours/:sessionId/queue.
func (h *TicketsHandler) ListQueue(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "sessionId")
	if err != nil {
		return err
	}
	tickets, err := h.service.ListQueue(c.UserContext(), principal.UserID, sessionID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketViews(tickets)})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func principalAndTicket(c *fiber.Ctx) (*auth.Principal, int64, error) {
	principal, err := requirePrincipal(c)
	if err != nil {
		return nil, 0, err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil, 0, err
	}
	return principal, id, nil
}

func parseID(c *fiber.Ctx, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+param, map[string]any{"field": param})
	}
	return id, nil
}
