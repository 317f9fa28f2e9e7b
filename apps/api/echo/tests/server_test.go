package tests

import (
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/core/user"
	cachesvc "github.com/trezcool/chuo/services/cache"
	testutil "github.com/trezcool/chuo/tests"
)

func Test_home(t *testing.T) {
	env := setup(t)

	rec := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Chuo API!", rec.Body.String())
}

func Test_maintenanceApi_status(t *testing.T) {
	env := setup(t)
	root := testutil.CreateUser(t, env.usrRepo, "Root", "root@test.cd", "", user.RoleSuperAdmin, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)

	rec := env.do(http.MethodGet, "/v1/maintenance/status", getToken(t, env, admin))
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)

	rec = env.do(http.MethodGet, "/v1/maintenance/status", getToken(t, env, root))
	require.Equal(t, http.StatusOK, rec.Code)
	var st echoapi.MaintenanceStatus
	unmarshal(t, rec, &st)
	assert.Equal(t, "Chuo", st.App)
	assert.Equal(t, "TEST", st.Env)
	assert.Equal(t, "ok", st.Store)
	assert.False(t, st.Time.IsZero())
}

func Test_rateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := setup(t, func(deps *echoapi.Deps) {
		deps.Conf.Server.RateLimit = 2
		deps.Limiter = cachesvc.NewRateLimiter(rdb)
	})
	body := marchallObj(t, echoapi.LoginRequest{Email: "lol@test.cd", Password: "lol"})

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/v1/users/login", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := env.do(http.MethodPost, "/v1/users/login", "", body)
	checkCodeAndData(t, httpTest{wantCode: http.StatusTooManyRequests, wantData: marchallObj(t, httpErr{Error: "too many requests"})}, rec)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// the limits are per endpoint
	rec = env.do(http.MethodPost, "/v1/users/password-reset", "", marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.cd"}))
	assert.Equal(t, http.StatusOK, rec.Code)

	// and let the requests through when Redis is down
	mr.Close()
	rec = env.do(http.MethodPost, "/v1/users/login", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
