package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/enrollment"
)

type enrollmentApi struct {
	svc enrollment.Service
}

// registerMeAPI registers the learner's views: /me/enrollments and /me/dashboard.
func registerMeAPI(g *echo.Group, deps *Deps, authed []echo.MiddlewareFunc) {
	api := enrollmentApi{svc: deps.EnrollmentSvc}

	mg := g.Group("/me", authed...)
	mg.GET("/enrollments", api.myEnrollments)
	mg.GET("/dashboard", api.dashboard)
}

// registerAdminAPI registers the approval workflow of the admin console.
func registerAdminAPI(g *echo.Group, deps *Deps, authed []echo.MiddlewareFunc) {
	api := enrollmentApi{svc: deps.EnrollmentSvc}

	ag := g.Group("/admin", authed...)
	ag.Use(consoleMiddleware())
	ag.GET("/enrollments/pending", api.pending)
	ag.POST("/enrollments/:uid/:cid/approve", api.approve)
}

func (api *enrollmentApi) myEnrollments(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.Enrollments(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *enrollmentApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	dash, err := api.svc.Dashboard(ctx.Request().Context(), usr.ID, core.NowFunc())
	if err != nil {
		return errors.Wrap(err, "aggregating dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *enrollmentApi) pending(ctx echo.Context) error {
	groups, err := api.svc.PendingByUser(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing pending enrollments")
	}
	return ctx.JSON(http.StatusOK, groups)
}

// approve activates a pending enrollment and answers with the refreshed enrollments of the user.
func (api *enrollmentApi) approve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	userID := ctx.Param("uid")

	if _, err := api.svc.Approve(reqCtx, userID, ctx.Param("cid")); err != nil {
		return errors.Wrap(err, "approving enrollment")
	}
	l, err := api.svc.Enrollments(reqCtx, userID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, l)
}
