package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	adaptermiddleware "ops-portal/internal/adapters/http/middleware"
	"ops-portal/internal/domain"
)

type Middleware struct {
	Auth          echo.MiddlewareFunc
	XRay          echo.MiddlewareFunc
	RequestLogger echo.MiddlewareFunc
}

// NewMainRouter assembles the portal's HTTP surface. Sign-in and health are
// the only public routes; everything else sits behind the identity
// middleware, and each route carries exactly the capability guard its
// screen needs.
func NewMainRouter(
	auth *AuthHandler,
	session *SessionHandler,
	admin *AdminHandler,
	records *RecordsHandler,
	watch *WatchHandler,
	gate adaptermiddleware.Gate,
	mw Middleware,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = newPayloadValidator()
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	if mw.XRay != nil {
		e.Use(mw.XRay)
	}
	if mw.RequestLogger != nil {
		e.Use(mw.RequestLogger)
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(stdhttp.StatusOK)
	})
	e.POST("/auth/signin", auth.SignIn)

	authed := e.Group("")
	if mw.Auth != nil {
		authed.Use(mw.Auth)
	}

	authed.POST("/auth/signout", auth.SignOut)
	authed.GET("/me/session", session.Get)
	authed.GET("/me/menu", session.Menu)
	authed.POST("/authorize", session.Authorize)
	authed.GET("/me/watch", watch.Watch)

	adminGroup := authed.Group("/admin", adaptermiddleware.RequireAdmin(gate))
	adminGroup.POST("/users", admin.ProvisionUser)
	adminGroup.GET("/users/:user_id/role", admin.GetUserRole)
	adminGroup.PUT("/users/:user_id/role", admin.SetUserRole)
	adminGroup.PUT("/users/:user_id/permissions", admin.SetUserPermissions)
	adminGroup.POST("/migrate-permissions", admin.MigratePermissions)

	// The form pages' generic document backend. The collection name is the
	// module; the verb picks the sub-action the user must hold.
	recordsGroup := authed.Group("/records")
	recordsGroup.POST("/:collection",
		records.Create, adaptermiddleware.RequireCollectionCapability(gate, domain.ActionNewRequest))
	recordsGroup.GET("/:collection",
		records.List, adaptermiddleware.RequireCollectionCapability(gate, domain.ActionPending))
	recordsGroup.GET("/:collection/:id",
		records.Get, adaptermiddleware.RequireCollectionCapability(gate, domain.ActionPending))
	recordsGroup.PUT("/:collection/:id",
		records.Update, adaptermiddleware.RequireCollectionCapability(gate, domain.ActionUpdate))
	recordsGroup.DELETE("/:collection/:id",
		records.Delete, adaptermiddleware.RequireCollectionCapability(gate, domain.ActionUpdate))

	return e
}
