package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/course"
	"github.com/trezcool/chuo/core/enrollment"
	"github.com/trezcool/chuo/core/user"
	testutil "github.com/trezcool/chuo/tests"
)

func permissionDenied(t *testing.T, reason string) []byte {
	return marchallObj(t, map[string]string{"error": "permission denied", "reason": reason})
}

func Test_enrollmentFlow(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "prof@test.cd", "", user.RoleFaculty, true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", "", "", true)
	crs := testutil.CreateCourse(t, env.svcs.Courses, "Go", "Basics", "Concurrency")
	other := testutil.CreateCourse(t, env.svcs.Courses, "Rust", "Ownership")
	profToken := getToken(t, env, prof)
	token := getToken(t, env, student)
	cpath := "/v1/courses/" + crs.ID
	modules := crs.ModuleIDs()
	require.Len(t, modules, 2)

	due := time.Now().Add(72 * time.Hour)
	crs, err := env.svcs.Courses.AddAssignment(context.Background(), crs.ID, course.NewAssignment{Title: "Essay", DueDate: due})
	require.NoError(t, err)
	_, err = env.svcs.Courses.AddExam(context.Background(), crs.ID, course.NewExam{Title: "Final", Date: due})
	require.NoError(t, err)
	var assignmentID string
	for aid := range crs.Assignments {
		assignmentID = aid
	}

	t.Run("unknown course", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/courses/lol/enroll", token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"})}, rec)
	})

	t.Run("not enrolled", func(t *testing.T) {
		rec := env.do(http.MethodGet, cpath+"/content", token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: permissionDenied(t, "NOT_ENROLLED")}, rec)
	})

	env.events.Reset()
	rec := env.do(http.MethodPost, cpath+"/enroll", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res echoapi.EnrollResponse
	unmarshal(t, rec, &res)
	assert.True(t, res.Created)
	assert.Equal(t, "enrollment requested", res.Message)
	assert.Equal(t, enrollment.StatusPendingApproval, res.Enrollment.Status)
	assert.Equal(t, "Go", res.Enrollment.CourseTitle)
	assert.Equal(t, []string{core.EventEnrollmentRequested}, env.events.Names())

	t.Run("duplicate request", func(t *testing.T) {
		rec := env.do(http.MethodPost, cpath+"/enroll", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var res echoapi.EnrollResponse
		unmarshal(t, rec, &res)
		assert.False(t, res.Created)
		assert.Equal(t, "enrollment pending approval", res.Message)

		l, err := env.svcs.Enrollments.Enrollments(context.Background(), student.ID)
		require.NoError(t, err)
		assert.Len(t, l, 1)
	})

	t.Run("pending enrollments are gated", func(t *testing.T) {
		for _, path := range []string{cpath + "/content", cpath + "/progress"} {
			rec := env.do(http.MethodGet, path, token)
			checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: permissionDenied(t, "ENROLLMENT_NOT_ACTIVE")}, rec)
		}
		rec := env.do(http.MethodPost, cpath+"/modules/"+modules[0]+"/complete", token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: permissionDenied(t, "ENROLLMENT_NOT_ACTIVE")}, rec)
	})

	t.Run("pending dashboard", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/me/dashboard", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var dash enrollment.Dashboard
		unmarshal(t, rec, &dash)
		require.Len(t, dash.Courses, 1)
		assert.Equal(t, enrollment.StatusPendingApproval, dash.Courses[0].Status)
		assert.Equal(t, 1, dash.AssignmentsDue)
		assert.Equal(t, 1, dash.UpcomingExams)
	})

	t.Run("approvals are for the staff", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/admin/enrollments/pending", token)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = env.do(http.MethodPost, "/v1/admin/enrollments/"+student.ID+"/"+crs.ID+"/approve", token)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("pending list", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/admin/enrollments/pending", profToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var groups []enrollment.PendingGroup
		unmarshal(t, rec, &groups)
		require.Len(t, groups, 1)
		assert.Equal(t, enrollment.PendingUser{ID: student.ID, Name: student.Name, Email: student.Email}, groups[0].User)
		require.Len(t, groups[0].Enrollments, 1)
		assert.Equal(t, crs.ID, groups[0].Enrollments[0].CourseID)
	})

	env.mailSvc.Reset()
	rec = env.do(http.MethodPost, "/v1/admin/enrollments/"+student.ID+"/"+crs.ID+"/approve", profToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var l enrollment.List
	unmarshal(t, rec, &l)
	require.Len(t, l, 1)
	assert.Equal(t, enrollment.StatusActive, l[0].Status)
	sent := env.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, student.Email, sent[0].To[0].Address)

	t.Run("approve twice", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/admin/enrollments/"+student.ID+"/"+crs.ID+"/approve", profToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "pending enrollment not found"})}, rec)

		rec = env.do(http.MethodGet, "/v1/admin/enrollments/pending", profToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)
	})

	t.Run("already enrolled", func(t *testing.T) {
		rec := env.do(http.MethodPost, cpath+"/enroll", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var res echoapi.EnrollResponse
		unmarshal(t, rec, &res)
		assert.Equal(t, "already enrolled", res.Message)
	})

	t.Run("content", func(t *testing.T) {
		rec := env.do(http.MethodGet, cpath+"/content", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var c course.Course
		unmarshal(t, rec, &c)
		assert.Equal(t, "Basics", c.Sections[0].Items[0].Body)

		l, err := env.svcs.Enrollments.Enrollments(context.Background(), student.ID)
		require.NoError(t, err)
		assert.True(t, l[0].LastAccessedAt.Valid)

		// other courses stay closed
		rec = env.do(http.MethodGet, "/v1/courses/"+other.ID+"/content", token)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("progress", func(t *testing.T) {
		rec := env.do(http.MethodGet, cpath+"/progress", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var p enrollment.ProgressView
		unmarshal(t, rec, &p)
		assert.Equal(t, 2, p.TotalModules)
		assert.Empty(t, p.CompletedModules)
		assert.Equal(t, float64(0), p.CompletionPercent)
	})

	t.Run("complete modules", func(t *testing.T) {
		env.events.Reset()
		for i := 0; i < 2; i++ { // idempotent
			rec := env.do(http.MethodPost, cpath+"/modules/"+modules[0]+"/complete", token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var p enrollment.ProgressView
			unmarshal(t, rec, &p)
			assert.Equal(t, []string{modules[0]}, p.CompletedModules)
			assert.Equal(t, float64(50), p.CompletionPercent)
		}
		assert.Equal(t, []string{core.EventModuleCompleted}, env.events.Names())

		rec := env.do(http.MethodPost, cpath+"/modules/lol/complete", token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "module not found"})}, rec)
	})

	t.Run("submit assignment", func(t *testing.T) {
		rec := env.do(http.MethodPost, cpath+"/assignments/"+assignmentID+"/submit", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p enrollment.ProgressView
		unmarshal(t, rec, &p)
		assert.Equal(t, 1, p.AssignmentsSubmitted)
		assert.Equal(t, []string{assignmentID}, p.SubmittedAssignments)

		rec = env.do(http.MethodPost, cpath+"/assignments/lol/submit", token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("active dashboard", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/me/dashboard", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var dash enrollment.Dashboard
		unmarshal(t, rec, &dash)
		require.Len(t, dash.Courses, 1)
		assert.Equal(t, enrollment.DashboardCourse{
			CourseID:          crs.ID,
			Title:             "Go",
			Status:            enrollment.StatusActive,
			CompletionPercent: 50,
			AssignmentsDue:    1,
			UpcomingExams:     1,
		}, dash.Courses[0])
	})

	t.Run("my enrollments", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/me/enrollments", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var l enrollment.List
		unmarshal(t, rec, &l)
		require.Len(t, l, 1)
		assert.Equal(t, crs.ID, l[0].CourseID)

		rec = env.do(http.MethodGet, "/v1/me/enrollments", profToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)
	})

	t.Run("deleted course stays on the dashboard", func(t *testing.T) {
		require.NoError(t, env.svcs.Courses.Delete(context.Background(), crs.ID))

		rec := env.do(http.MethodGet, "/v1/me/dashboard", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var dash enrollment.Dashboard
		unmarshal(t, rec, &dash)
		require.Len(t, dash.Courses, 1)
		assert.Equal(t, "Go", dash.Courses[0].Title)
		assert.Equal(t, 0, dash.AssignmentsDue)
	})
}
