package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/course"
	"github.com/trezcool/chuo/core/enrollment"
)

type courseApi struct {
	svc       course.Service
	enrollSvc enrollment.Service
	logger    core.Logger
	validate  *validator.Validate
}

func registerCourseAPI(g *echo.Group, deps *Deps, authed []echo.MiddlewareFunc) {
	api := courseApi{
		svc:       deps.CourseSvc,
		enrollSvc: deps.EnrollmentSvc,
		logger:    deps.Logger,
		validate:  deps.Validate,
	}
	console := consoleMiddleware()

	cg := g.Group("/courses", authed...)

	// catalog
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)

	// admin console
	cg.POST("", api.create, console)
	cg.PUT("/:id", api.update, console)
	cg.DELETE("/:id", api.destroy, console)
	cg.POST("/:id/sections", api.addSection, console)
	cg.DELETE("/:id/sections/:sid", api.removeSection, console)
	cg.POST("/:id/sections/:sid/items", api.addItem, console)
	cg.DELETE("/:id/sections/:sid/items/:iid", api.removeItem, console)
	cg.POST("/:id/assignments", api.addAssignment, console)
	cg.DELETE("/:id/assignments/:aid", api.removeAssignment, console)
	cg.POST("/:id/exams", api.addExam, console)
	cg.DELETE("/:id/exams/:eid", api.removeExam, console)

	// learners
	cg.POST("/:id/enroll", api.enroll)
	cg.GET("/:id/content", api.content)
	cg.GET("/:id/progress", api.progress)
	cg.POST("/:id/modules/:mid/complete", api.completeModule)
	cg.POST("/:id/assignments/:aid/submit", api.submitAssignment)
}

// Catalog

func (api *courseApi) query(ctx echo.Context) error {
	filter := course.QueryFilter{
		Search: ctx.QueryParam("search"),
		TermID: ctx.QueryParam("term_id"),
	}
	filter.Clean()

	courses, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	summaries := make([]course.Course, len(courses))
	for i, c := range courses {
		summaries[i] = c.Summary()
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course by ID")
	}
	return ctx.JSON(http.StatusOK, c.Summary())
}

// Admin console

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) addSection(ctx echo.Context) error {
	var data course.NewSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.AddSection(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding section")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) removeSection(ctx echo.Context) error {
	c, err := api.svc.RemoveSection(ctx.Request().Context(), ctx.Param("id"), ctx.Param("sid"))
	if err != nil {
		return errors.Wrap(err, "removing section")
	}
	return ctx.JSON(http.StatusOK, c)
}

// addItem adds a content item described in JSON, or uploaded as the `file` of a multipart form.
func (api *courseApi) addItem(ctx echo.Context) error {
	var data course.NewContentItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewContentItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	courseID, sectionID := ctx.Param("id"), ctx.Param("sid")

	var (
		c   course.Course
		err error
	)
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		file, ferr := ctx.FormFile("file")
		if ferr != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
		}
		src, ferr := file.Open()
		if ferr != nil {
			return errors.Wrap(ferr, "opening uploaded file")
		}
		defer src.Close()

		c, err = api.svc.UploadItem(reqCtx, courseID, sectionID, data, course.Upload{
			Filename:    file.Filename,
			ContentType: file.Header.Get(echo.HeaderContentType),
			Size:        file.Size,
			Content:     src,
		})
	} else {
		c, err = api.svc.AddItem(reqCtx, courseID, sectionID, data)
	}
	if err != nil {
		return errors.Wrap(err, "adding content item")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) removeItem(ctx echo.Context) error {
	c, err := api.svc.RemoveItem(ctx.Request().Context(), ctx.Param("id"), ctx.Param("sid"), ctx.Param("iid"))
	if err != nil {
		return errors.Wrap(err, "removing content item")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) addAssignment(ctx echo.Context) error {
	var data course.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.AddAssignment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding assignment")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) removeAssignment(ctx echo.Context) error {
	c, err := api.svc.RemoveAssignment(ctx.Request().Context(), ctx.Param("id"), ctx.Param("aid"))
	if err != nil {
		return errors.Wrap(err, "removing assignment")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) addExam(ctx echo.Context) error {
	var data course.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.AddExam(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding exam")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) removeExam(ctx echo.Context) error {
	c, err := api.svc.RemoveExam(ctx.Request().Context(), ctx.Param("id"), ctx.Param("eid"))
	if err != nil {
		return errors.Wrap(err, "removing exam")
	}
	return ctx.JSON(http.StatusOK, c)
}

// Learners

type EnrollResponse struct {
	enrollment.RequestResult
	Message string `json:"message"`
}

func (api *courseApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	res, err := api.enrollSvc.Request(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "requesting enrollment")
	}

	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, EnrollResponse{RequestResult: res, Message: res.Message()})
}

// gate evaluates the content gate of the course `:id` for the user in context.
func (api *courseApi) gate(ctx echo.Context) (userID string, err error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return "", err
	}
	decision, err := api.enrollSvc.CheckAccess(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return "", errors.Wrap(err, "checking access")
	}
	return usr.ID, decision.Err()
}

func (api *courseApi) content(ctx echo.Context) error {
	userID, err := api.gate(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	c, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course by ID")
	}
	if err = api.enrollSvc.Touch(reqCtx, userID, c.ID); err != nil {
		api.logger.Warn("recording course access", err, contextUser(ctx))
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) progress(ctx echo.Context) error {
	userID, err := api.gate(ctx)
	if err != nil {
		return err
	}
	p, err := api.enrollSvc.Progress(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding progress")
	}
	return ctx.JSON(http.StatusOK, p.View())
}

func (api *courseApi) completeModule(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.enrollSvc.MarkModuleComplete(ctx.Request().Context(), usr.ID, ctx.Param("id"), ctx.Param("mid"))
	if err != nil {
		return errors.Wrap(err, "completing module")
	}
	return ctx.JSON(http.StatusOK, p.View())
}

func (api *courseApi) submitAssignment(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.enrollSvc.SubmitAssignment(ctx.Request().Context(), usr.ID, ctx.Param("id"), ctx.Param("aid"))
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusOK, p.View())
}
