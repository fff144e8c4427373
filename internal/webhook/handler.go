package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/service"
)

// maxBody caps the size of a delivery.
const maxBody = 1 << 20

// Users is the part of the user service the webhook drives.
type Users interface {
	SyncExternal(ctx context.Context, ext service.ExternalUser) (model.User, bool, error)
	DeleteExternal(ctx context.Context, externalID string) error
}

// Handler serves POST /api/webhooks/clerk.
type Handler struct {
	verifier *Verifier
	users    Users
	log      *zap.Logger
}

func NewHandler(v *Verifier, users Users, log *zap.Logger) *Handler {
	return &Handler{verifier: v, users: users, log: log}
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type emailAddress struct {
	ID    string `json:"id"`
	Email string `json:"email_address"`
}

type userData struct {
	ID             string         `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Username       string         `json:"username"`
	PrimaryEmailID string         `json:"primary_email_address_id"`
	Emails         []emailAddress `json:"email_addresses"`
	PublicMetadata struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

func (u userData) external() service.ExternalUser {
	ext := service.ExternalUser{
		ID:   u.ID,
		Name: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Role: u.PublicMetadata.Role,
	}
	for _, e := range u.Emails {
		if ext.Email == "" || e.ID == u.PrimaryEmailID {
			ext.Email = e.Email
		}
	}
	if ext.Name == "" {
		ext.Name = u.Username
	}
	return ext
}

func (h *Handler) Handle(c echo.Context) error {
	if h.verifier == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"success": false, "error": "webhook secret not configured"})
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "unreadable body"})
	}
	if err := h.verifier.Verify(c.Request().Header, body); err != nil {
		if errors.Is(err, ErrMissingHeaders) {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
		}
		h.log.Warn("webhook rejected", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": err.Error()})
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "malformed event"})
	}
	ctx := c.Request().Context()
	switch ev.Type {
	case "user.created", "user.updated":
		var u userData
		if err := json.Unmarshal(ev.Data, &u); err != nil || u.ID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "malformed user"})
		}
		user, created, err := h.users.SyncExternal(ctx, u.external())
		if err != nil {
			h.log.Error("user sync failed", zap.String("external_id", u.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "user sync failed"})
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"user_id": user.ID, "created": created}})
	case "user.deleted":
		var u userData
		if err := json.Unmarshal(ev.Data, &u); err != nil || u.ID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "malformed user"})
		}
		if err := h.users.DeleteExternal(ctx, u.ID); err != nil {
			h.log.Error("user delete failed", zap.String("external_id", u.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "user delete failed"})
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	default:
		h.log.Debug("webhook event ignored", zap.String("type", ev.Type))
		return c.JSON(http.StatusOK, echo.Map{"success": true, "ignored": ev.Type})
	}
}
