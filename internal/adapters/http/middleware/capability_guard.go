package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"ops-portal/internal/domain"
)

// Gate is the allow/deny decision surface the guards compose. Satisfied by
// application.AuthorizationService.
type Gate interface {
	IsAllowed(ctx context.Context, userID, module, action string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireCapability rejects the request unless the signed-in user holds the
// capability. The admin override lives inside the gate; no route re-checks
// roles by hand.
func RequireCapability(gate Gate, module, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := c.Get("user_id").(string)
			if !ok || uid == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing identity"})
			}
			allowed, err := gate.IsAllowed(c.Request().Context(), uid, module, action)
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "authorization unavailable"})
			}
			if !allowed {
				return c.JSON(http.StatusForbidden, map[string]string{"error": domain.ErrPermissionDeny.Error()})
			}
			return next(c)
		}
	}
}

// RequireCollectionCapability gates the generic document routes: the
// collection path parameter is the module and the action depends on the
// verb performed.
func RequireCollectionCapability(gate Gate, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := c.Get("user_id").(string)
			if !ok || uid == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing identity"})
			}
			allowed, err := gate.IsAllowed(c.Request().Context(), uid, c.Param("collection"), action)
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "authorization unavailable"})
			}
			if !allowed {
				return c.JSON(http.StatusForbidden, map[string]string{"error": domain.ErrPermissionDeny.Error()})
			}
			return next(c)
		}
	}
}

// RequireAdmin guards the administrative screens, which are admin-only
// regardless of granular grants.
func RequireAdmin(gate Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := c.Get("user_id").(string)
			if !ok || uid == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing identity"})
			}
			isAdmin, err := gate.IsAdmin(c.Request().Context(), uid)
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "authorization unavailable"})
			}
			if !isAdmin {
				return c.JSON(http.StatusForbidden, map[string]string{"error": domain.ErrPermissionDeny.Error()})
			}
			return next(c)
		}
	}
}
