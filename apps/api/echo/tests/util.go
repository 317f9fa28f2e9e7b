package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/apps/shared"
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
	blobsvc "github.com/trezcool/chuo/services/blob"
	cachesvc "github.com/trezcool/chuo/services/cache"
	emailsvc "github.com/trezcool/chuo/services/email"
	eventsvc "github.com/trezcool/chuo/services/events"
	logsvc "github.com/trezcool/chuo/services/logger"
	"github.com/trezcool/chuo/storage/database/memdb"
	"github.com/trezcool/chuo/storage/docrepos"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	conf    *core.Config
	store   core.DocStore
	app     echoapi.Server
	svcs    *shared.Services
	usrRepo user.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	events  *eventsvc.Recorder
	blobs   *blobsvc.MemoryStore
}

func setup(t *testing.T, opts ...func(deps *echoapi.Deps)) *testEnv {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(zerolog.Nop(), conf)

	// set up DB & repos
	store := memdb.Open(logger)
	t.Cleanup(func() { _ = store.Close() })

	// set up services
	env := &testEnv{
		conf:    conf,
		store:   store,
		usrRepo: docrepos.NewUserRepository(store),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		events:  eventsvc.NewRecorder(),
		blobs:   blobsvc.NewMemoryStore("chuo-content", "http://localhost:9000"),
	}
	backends := &shared.Backends{
		Mail:     env.mailSvc,
		Events:   env.events,
		Blobs:    env.blobs,
		Denylist: cachesvc.NewMemoryDenylist(),
	}
	env.svcs = shared.NewServicesMock(conf, store, backends, logger)

	// set up server
	validate, translator := shared.NewValidator()
	deps := &echoapi.Deps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Store:          store,
		UserSvc:        env.svcs.Users,
		CourseSvc:      env.svcs.Courses,
		EnrollmentSvc:  env.svcs.Enrollments,
		FeedSvc:        env.svcs.Feeds,
		DisableReqLogs: true,
	}
	for _, opt := range opts {
		opt(deps)
	}
	env.app = echoapi.NewServer(deps)
	return env
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves a request and returns the recorded response.
func (env *testEnv) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	env.app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, env *testEnv, usr user.User) string {
	token, err := echoapi.GenerateUserToken(env.conf, usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "code; body = %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
