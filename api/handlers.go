package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// TurnsResponse is the body of GET /turns.
type TurnsResponse struct {
	Count int             `json:"count"`
	Turns []*storage.Turn `json:"turns"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListTurns returns the most recent turns, newest first.
func (s *Server) handleListTurns(c *fiber.Ctx) error {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = min(n, maxListLimit)
	}

	turns, err := s.storer.List(c.Context(), storage.ListOptions{Limit: limit})
	if err != nil {
		s.logger.Error("failed to list turns", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(chat.ErrorResponse{Error: "failed to list turns"})
	}
	if turns == nil {
		turns = []*storage.Turn{}
	}

	return c.JSON(TurnsResponse{Count: len(turns), Turns: turns})
}

// handleGetTurn returns a single turn by its ID.
func (s *Server) handleGetTurn(c *fiber.Ctx) error {
	turn, err := s.storer.Get(c.Context(), c.Params("id"))
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(chat.ErrorResponse{Error: "turn not found"})
		}
		s.logger.Error("failed to get turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(chat.ErrorResponse{Error: "failed to get turn"})
	}

	return c.JSON(turn)
}

// handleTurnStats summarizes every recorded turn.
func (s *Server) handleTurnStats(c *fiber.Ctx) error {
	turns, err := s.storer.List(c.Context(), storage.ListOptions{})
	if err != nil {
		s.logger.Error("failed to list turns", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(chat.ErrorResponse{Error: "failed to list turns"})
	}

	return c.JSON(storage.Summarize(turns))
}
