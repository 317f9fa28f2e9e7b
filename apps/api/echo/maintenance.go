package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/chuo/core"
)

type maintenanceApi struct {
	conf  *core.Config
	store core.DocStore
}

type MaintenanceStatus struct {
	App   string    `json:"app"`
	Env   string    `json:"env"`
	Build string    `json:"build"`
	Store string    `json:"store"`
	Time  time.Time `json:"time"`
}

func registerMaintenanceAPI(g *echo.Group, deps *Deps, authed []echo.MiddlewareFunc) {
	api := maintenanceApi{conf: deps.Conf, store: deps.Store}

	mg := g.Group("/maintenance", authed...)
	mg.Use(maintenanceMiddleware())
	mg.GET("/status", api.status)
}

func (api *maintenanceApi) status(ctx echo.Context) error {
	st := MaintenanceStatus{
		App:   api.conf.AppName,
		Env:   api.conf.Env,
		Build: api.conf.Build,
		Store: "ok",
		Time:  core.NowFunc(),
	}
	code := http.StatusOK
	if api.store == nil {
		st.Store = "not configured"
	} else if err := api.store.Ping(ctx.Request().Context()); err != nil {
		st.Store = err.Error()
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, st)
}
