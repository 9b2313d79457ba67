package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"ops-portal/internal/application"
	"ops-portal/internal/domain"
	"ops-portal/internal/infrastructure/cognito"
	"ops-portal/internal/ports"
)

func handleError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(stdhttp.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		return c.JSON(stdhttp.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, cognito.ErrAuthFailed):
		return c.JSON(stdhttp.StatusUnauthorized, map[string]string{"error": err.Error()})
	default:
		return c.JSON(stdhttp.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func currentUserID(c echo.Context) (string, bool) {
	uid, ok := c.Get("user_id").(string)
	return uid, ok && uid != ""
}

type AuthHandler struct {
	accounts ports.AccountStore
	logger   ports.Logger
}

func NewAuthHandler(accounts ports.AccountStore, logger ports.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

func (h *AuthHandler) SignIn(c echo.Context) error {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	result, err := h.accounts.SignIn(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]any{
		"id_token":     result.IDToken,
		"access_token": result.AccessToken,
		"expires_in":   result.ExpiresIn,
	})
}

func (h *AuthHandler) SignOut(c echo.Context) error {
	var req struct {
		AccessToken string `json:"access_token" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.accounts.SignOut(c.Request().Context(), req.AccessToken); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

type SessionHandler struct {
	authz  *application.AuthorizationService
	nav    *application.NavigationService
	logger ports.Logger
}

func NewSessionHandler(authz *application.AuthorizationService, nav *application.NavigationService, logger ports.Logger) *SessionHandler {
	return &SessionHandler{authz: authz, nav: nav, logger: logger}
}

// Get returns everything the client shell needs to render: role, canonical
// permission tokens and the filtered navigation tree.
func (h *SessionHandler) Get(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return c.JSON(stdhttp.StatusUnauthorized, map[string]string{"error": "missing identity"})
	}
	rec, err := h.authz.Snapshot(c.Request().Context(), uid)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]any{
		"user_id":     uid,
		"role":        rec.Role,
		"permissions": rec.Permissions,
		"is_admin":    domain.IsAdmin(rec.Role),
		"menu":        domain.FilterMenu(domain.DefaultMenu(), rec.Role, rec.Permissions),
	})
}

func (h *SessionHandler) Menu(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return c.JSON(stdhttp.StatusUnauthorized, map[string]string{"error": "missing identity"})
	}
	menu, err := h.nav.VisibleMenu(c.Request().Context(), uid)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, menu)
}

func (h *SessionHandler) Authorize(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return c.JSON(stdhttp.StatusUnauthorized, map[string]string{"error": "missing identity"})
	}
	var req struct {
		Module string `json:"module" validate:"required"`
		Action string `json:"action"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	allowed, err := h.authz.IsAllowed(c.Request().Context(), uid, req.Module, req.Action)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]bool{"allowed": allowed})
}

type AdminHandler struct {
	roles     *application.RoleService
	accounts  ports.AccountStore
	migration *application.MigrationService
	logger    ports.Logger
}

func NewAdminHandler(roles *application.RoleService, accounts ports.AccountStore, migration *application.MigrationService, logger ports.Logger) *AdminHandler {
	return &AdminHandler{roles: roles, accounts: accounts, migration: migration, logger: logger}
}

func (h *AdminHandler) GetUserRole(c echo.Context) error {
	rec, err := h.roles.GetRole(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, rec)
}

func (h *AdminHandler) SetUserRole(c echo.Context) error {
	var req struct {
		Role string `json:"role" validate:"required,oneof=admin user"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.roles.SetRole(c.Request().Context(), c.Param("user_id"), domain.RoleTag(req.Role)); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(stdhttp.StatusOK)
}

// SetUserPermissions replaces the whole permission set. There is no partial
// edit on purpose: a failed update leaves the previous set fully intact.
func (h *AdminHandler) SetUserPermissions(c echo.Context) error {
	var req struct {
		Permissions []string `json:"permissions" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.roles.UpdatePermissions(c.Request().Context(), c.Param("user_id"), req.Permissions); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(stdhttp.StatusOK)
}

// ProvisionUser creates the account in the Account Store and the role
// record in one step.
func (h *AdminHandler) ProvisionUser(c echo.Context) error {
	var req struct {
		Username string `json:"username" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Role     string `json:"role" validate:"omitempty,oneof=admin user"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	uid, err := h.accounts.Provision(c.Request().Context(), req.Username, req.Email)
	if err != nil {
		return handleError(c, err)
	}
	role := domain.ParseRoleTag(req.Role)
	rec, err := h.roles.Provision(c.Request().Context(), uid, role)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusCreated, rec)
}

func (h *AdminHandler) MigratePermissions(c echo.Context) error {
	report, err := h.migration.Run(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, report)
}

type RecordsHandler struct {
	records *application.RecordService
	logger  ports.Logger
}

func NewRecordsHandler(records *application.RecordService, logger ports.Logger) *RecordsHandler {
	return &RecordsHandler{records: records, logger: logger}
}

func (h *RecordsHandler) Create(c echo.Context) error {
	var req struct {
		ID     string         `json:"id" validate:"required"`
		Fields map[string]any `json:"fields" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.records.Create(c.Request().Context(), c.Param("collection"), req.ID, req.Fields); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(stdhttp.StatusCreated)
}

func (h *RecordsHandler) Get(c echo.Context) error {
	doc, err := h.records.Get(c.Request().Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, doc)
}

func (h *RecordsHandler) List(c echo.Context) error {
	docs, err := h.records.List(c.Request().Context(), c.Param("collection"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, docs)
}

func (h *RecordsHandler) Update(c echo.Context) error {
	var req struct {
		Fields map[string]any `json:"fields" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.records.Update(c.Request().Context(), c.Param("collection"), c.Param("id"), req.Fields); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(stdhttp.StatusOK)
}

func (h *RecordsHandler) Delete(c echo.Context) error {
	if err := h.records.Delete(c.Request().Context(), c.Param("collection"), c.Param("id")); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}
