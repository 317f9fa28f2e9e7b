package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/feed"
)

var streamHeartbeat = 30 * time.Second

type feedApi struct {
	svc      feed.Service
	validate *validator.Validate
}

func registerFeedAPI(g *echo.Group, deps *Deps, auth *authenticator, authed []echo.MiddlewareFunc) {
	api := feedApi{svc: deps.FeedSvc, validate: deps.Validate}

	fg := g.Group("/feeds")
	fg.GET("/:feed", api.recent, authed...)
	fg.POST("/:feed", api.post, authed...)
	// EventSource cannot send an Authorization header
	fg.GET("/:feed/stream", api.stream, auth.jwtFromQuery(), auth.identify)
}

func (api *feedApi) recent(ctx echo.Context) error {
	msgs, err := api.svc.Recent(ctx.Request().Context(), ctx.Param("feed"), bindLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "listing messages")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *feedApi) post(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data feed.NewPost
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Post(ctx.Request().Context(), ctx.Param("feed"), usr, data)
	if err != nil {
		return errors.Wrap(err, "posting message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

// stream sends the window of the last messages of a feed as Server-Sent Events,
// once on connection and then on every change, until the client goes away.
func (api *feedApi) stream(ctx echo.Context) error {
	reqCtx, cancel := context.WithCancel(ctx.Request().Context())
	defer cancel()

	d, err := api.svc.Watch(reqCtx, ctx.Param("feed"), bindLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "watching feed")
	}
	windows, stop := d.Listen()
	defer stop()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-heartbeat.C:
			if _, err = fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case msgs, ok := <-windows:
			if !ok {
				return nil // the subscription ended
			}
			if err = writeEvent(res, "messages", msgs); err != nil {
				return nil
			}
		}
	}
}

func writeEvent(res *echo.Response, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}
