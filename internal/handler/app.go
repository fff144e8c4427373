package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/navigation"
)

// ProviderLister reports which OAuth providers are configured.
type ProviderLister interface {
	Configured() []model.Provider
}

// AppHandler serves the role-dependent shell of the UI.
type AppHandler struct {
	UploadPublicKey string
	Providers       ProviderLister
}

type navigationResponse struct {
	Role  model.Role        `json:"role"`
	Home  string            `json:"home"`
	Items []navigation.Item `json:"items"`
}

// Navigation returns the sidebar for the caller's role.
func (h *AppHandler) Navigation(c echo.Context) error {
	role := middleware.Caller(c).Role
	return ok(c, http.StatusOK, navigationResponse{
		Role:  role,
		Home:  navigation.Home(role),
		Items: navigation.For(role),
	})
}

// Dashboard redirects to the caller's role home.
func (h *AppHandler) Dashboard(c echo.Context) error {
	return c.Redirect(http.StatusFound, navigation.Home(middleware.Caller(c).Role))
}

type publicConfig struct {
	UploadPublicKey string           `json:"upload_public_key"`
	Providers       []model.Provider `json:"providers"`
}

// PublicConfig exposes the settings the browser needs.  Secrets never
// appear here.
func (h *AppHandler) PublicConfig(c echo.Context) error {
	cfg := publicConfig{UploadPublicKey: h.UploadPublicKey, Providers: []model.Provider{}}
	if h.Providers != nil {
		cfg.Providers = append(cfg.Providers, h.Providers.Configured()...)
	}
	return ok(c, http.StatusOK, cfg)
}
