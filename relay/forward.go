package relay

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/backend"
	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/relay/auth"
)

// The handlers below forward the persistence side channel to the backend.
// Backend failures are answered with the backend's status and its detail
// message; an unreachable backend is a 502.

func (r *Relay) handleRegisterMessage(c *fiber.Ctx) error {
	var req chat.RegisterMessageRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "invalid request body"})
	}
	if req.Email == "" {
		req.Email = auth.Email(c)
	}

	resp, err := r.backend.RegisterMessage(c.UserContext(), req)
	if err != nil {
		return r.forwardError(c, err, "failed to register message")
	}
	return c.JSON(resp)
}

func (r *Relay) handlePreference(c *fiber.Ctx) error {
	var req chat.PreferenceRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "invalid request body"})
	}
	pref, err := chat.ParsePreference(req.Preference)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: err.Error()})
	}

	if err := r.backend.SetPreference(c.UserContext(), req.MessageID, pref); err != nil {
		return r.forwardError(c, err, "failed to update message preference")
	}
	return c.JSON(chat.PreferenceResponse{Success: true})
}

func (r *Relay) handleSessionMessages(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseInt(c.Params("session_id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "invalid session id"})
	}

	msgs, err := r.backend.SessionMessages(c.UserContext(), sessionID)
	if err != nil {
		return r.forwardError(c, err, "failed to fetch chat messages")
	}

	out := make([]chat.ClientMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToClient())
	}
	return c.JSON(out)
}

func (r *Relay) handleUserSessions(c *fiber.Ctx) error {
	email, err := url.PathUnescape(c.Params("email"))
	if err != nil || email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "invalid email"})
	}

	sessions, err := r.backend.UserSessions(c.UserContext(), email)
	if err != nil {
		return r.forwardError(c, err, "failed to fetch chat sessions")
	}
	if sessions == nil {
		sessions = []chat.SessionSummary{}
	}
	return c.JSON(sessions)
}

func (r *Relay) handleModelParams(c *fiber.Ctx) error {
	models, err := r.backend.ModelParams(c.UserContext())
	if err != nil {
		return r.forwardError(c, err, "failed to fetch model parameters")
	}
	if models == nil {
		models = []chat.ModelDescriptor{}
	}
	return c.JSON(models)
}

func (r *Relay) handleRegisterUser(c *fiber.Ctx) error {
	var req chat.RegisterUserRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "invalid request body"})
		}
	}
	if req.Email == "" {
		req.Email = auth.Email(c)
	}
	if req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "email is required"})
	}

	resp, err := r.backend.RegisterUser(c.UserContext(), req.Email)
	if err != nil {
		return r.forwardError(c, err, "failed to register user")
	}
	return c.JSON(resp)
}

func (r *Relay) forwardError(c *fiber.Ctx, err error, fallback string) error {
	var httpErr *backend.HTTPError
	if errors.As(err, &httpErr) {
		msg := httpErr.Detail
		if msg == "" {
			msg = fallback
		}
		return c.Status(httpErr.Code).JSON(chat.ErrorResponse{Error: msg})
	}

	r.logger.Error("backend request failed",
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusBadGateway).JSON(chat.ErrorResponse{Error: fallback})
}
