package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/course"
)

type termApi struct {
	svc      course.Service
	validate *validator.Validate
}

func registerTermAPI(g *echo.Group, deps *Deps, authed []echo.MiddlewareFunc) {
	api := termApi{svc: deps.CourseSvc, validate: deps.Validate}

	tg := g.Group("/terms", authed...)
	tg.GET("", api.query)
	tg.GET("/:id", api.retrieve)
	tg.POST("", api.create, consoleMiddleware())
	tg.DELETE("/:id", api.destroy, consoleMiddleware())
}

func (api *termApi) query(ctx echo.Context) error {
	terms, err := api.svc.QueryTerms(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying terms")
	}
	if terms == nil {
		terms = []course.AcademicTerm{}
	}
	return ctx.JSON(http.StatusOK, terms)
}

func (api *termApi) retrieve(ctx echo.Context) error {
	term, err := api.svc.GetTerm(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding term by ID")
	}
	return ctx.JSON(http.StatusOK, term)
}

func (api *termApi) create(ctx echo.Context) error {
	var data course.NewTerm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTerm")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	term, err := api.svc.CreateTerm(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating term")
	}
	return ctx.JSON(http.StatusCreated, term)
}

func (api *termApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteTerm(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting term")
	}
	return ctx.NoContent(http.StatusNoContent)
}
