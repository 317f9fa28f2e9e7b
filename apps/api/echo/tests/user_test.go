package tests

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/core/user"
	testutil "github.com/trezcool/chuo/tests"
)

const strongPwd = "LolC@t123"

func Test_userApi_signup(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "Taken", "taken@test.cd", strongPwd, "", true)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: []byte("{}"),
			wantData: marchallObj(t, map[string]string{"name": reqMsg, "email": reqMsg, "password": reqMsg, "password_confirm": reqMsg}),
		},
		{
			name: "weak password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewUser{Name: "Hero", Email: "hero@test.cd", Password: "lol12345", PasswordConfirm: "lol12345"}),
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"}),
		},
		{
			name: "email taken", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewUser{Name: "Hero", Email: "Taken@test.cd", Password: strongPwd, PasswordConfirm: strongPwd}),
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "created as student", wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewUser{Name: " Hero ", Email: "Hero@Test.cd", Password: strongPwd, PasswordConfirm: strongPwd, Role: user.RoleAdmin}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/v1/users/signup", "", tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var usr user.User
				unmarshal(t, rec, &usr)
				assert.NotEmpty(t, usr.ID)
				assert.Equal(t, "Hero", usr.Name)
				assert.Equal(t, "hero@test.cd", usr.Email)
				assert.Equal(t, user.RoleStudent, usr.Role)
				assert.True(t, usr.IsActive)
			}
		})
	}
}

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog@test.cd", strongPwd, "", false)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", strongPwd, "", true)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: []byte("{}"),
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Email: "lol@test.cd", Password: strongPwd}),
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Email: student.Email, Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "deactivated account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Email: "ndog@test.cd", Password: strongPwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "logged in", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Email: " HERO@test.cd", Password: strongPwd}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/v1/users/login", "", tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
				require.NotNil(t, resp.User)
				assert.Equal(t, student.ID, resp.User.ID)
				assert.True(t, resp.User.LastLogin.Valid)
			}
		})
	}
}

func Test_userApi_logout(t *testing.T) {
	env := setup(t)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", strongPwd, "", true)
	token := getToken(t, env, student)

	rec := env.do(http.MethodGet, "/v1/users/me", token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/v1/users/logout", token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// the token is dead, others are not
	rec = env.do(http.MethodGet, "/v1/users/me", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "token has been revoked"})}, rec)

	rec = env.do(http.MethodGet, "/v1/users/me", getToken(t, env, student))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_me(t *testing.T) {
	env := setup(t)
	naughty := testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog@test.cd", "", "", false)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", "", "", true)
	ghost := user.User{ID: "ghost", Name: "Ghost", Role: user.RoleStudent, IsActive: true}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "invalid token", token: "lol", wantCode: http.StatusUnauthorized},
		{name: "unknown user", token: getToken(t, env, ghost), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})},
		{name: "deactivated user", token: getToken(t, env, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "me", token: getToken(t, env, student), wantCode: http.StatusOK, wantData: marchallObj(t, student)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/v1/users/me", tt.token)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_tokenRefresh(t *testing.T) {
	env := setup(t)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", "", "", true)

	rec := env.do(http.MethodPost, "/v1/users/token-refresh", getToken(t, env, student))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp echoapi.LoginResponse
	unmarshal(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	assert.Nil(t, resp.User)

	rec = env.do(http.MethodGet, "/v1/users/me", resp.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_query(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "prof@test.cd", "", user.RoleFaculty, true)
	bravo := testutil.CreateUser(t, env.usrRepo, "Bravo", "bravo@test.cd", "", "", true)
	alpha := testutil.CreateUser(t, env.usrRepo, "Alpha", "alpha@test.cd", "", "", false)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, env, bravo),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "order by name", path: "/v1/users?ordering=name", token: getToken(t, env, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, admin, alpha, bravo, prof),
		},
		{
			name: "filter by role", path: "/v1/users?role=student&ordering=-name", token: getToken(t, env, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, bravo, alpha),
		},
		{
			name: "filter by is_active", path: "/v1/users?is_active=false", token: getToken(t, env, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, alpha),
		},
		{
			name: "search", path: "/v1/users?search=PROF", token: getToken(t, env, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, prof),
		},
		{
			name: "no match", path: "/v1/users?search=nobody", token: getToken(t, env, admin),
			wantCode: http.StatusOK, wantData: marchallList(t),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.path, tt.token)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "prof@test.cd", "", user.RoleFaculty, true)

	newUsr := func(role string) []byte {
		return marchallObj(t, user.NewUser{Name: "Staff Member", Email: role + "@test.cd", Password: strongPwd, PasswordConfirm: strongPwd, Role: role})
	}
	tests := []httpTest{
		{name: "admin required", token: getToken(t, env, prof), body: newUsr(user.RoleFaculty), wantCode: http.StatusForbidden},
		{
			name: "invalid role", token: getToken(t, env, admin), body: newUsr("janitor"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "invalid role"}),
		},
		{
			name: "role above own", token: getToken(t, env, admin), body: newUsr(user.RoleSuperAdmin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "not enough rights to set this role"}),
		},
		{name: "faculty created", token: getToken(t, env, admin), body: newUsr(user.RoleFaculty), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var usr user.User
				unmarshal(t, rec, &usr)
				assert.Equal(t, user.RoleFaculty, usr.Role)
			}
		})
	}
}

func Test_userApi_retrieveAndUpdate(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", "", "", true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other@test.cd", "", "", true)
	adminToken := getToken(t, env, admin)
	studentToken := getToken(t, env, student)

	t.Run("others are hidden to non admins", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/users/"+other.ID, studentToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})

	t.Run("admins see everyone", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/users/"+other.ID, adminToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, other)}, rec)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/users/lol", adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("admin fields are forbidden to users", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/v1/users/"+student.ID, studentToken, []byte(`{"role":"admin"}`))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("users update their name", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/v1/users/"+student.ID, studentToken, []byte(`{"name":"  Super Hero "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Super Hero", usr.Name)
		assert.Equal(t, student.Email, usr.Email)
	})

	t.Run("admins cannot promote above themselves", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/v1/users/"+student.ID, adminToken, []byte(`{"role":"superadmin"}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"role": "not enough rights to set this role"}),
		}, rec)
	})

	t.Run("admins deactivate users", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/v1/users/"+other.ID, adminToken, []byte(`{"is_active":false,"role":"faculty"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.False(t, usr.IsActive)
		assert.Equal(t, user.RoleFaculty, usr.Role)

		// deactivated users lose access at once
		rec = env.do(http.MethodGet, "/v1/users/me", getToken(t, env, other))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_userApi_updateFees(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", "", "", true)
	path := "/v1/users/" + student.ID + "/fees"

	tests := []httpTest{
		{name: "admin required", token: getToken(t, env, student), body: []byte(`{"amount":10,"currency":"USD"}`), wantCode: http.StatusForbidden},
		{
			name: "required fields", token: getToken(t, env, admin), body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"amount": "this field is required", "currency": "this field is required"}),
		},
		{
			name: "invalid currency", token: getToken(t, env, admin), body: []byte(`{"amount":10,"currency":"dollars"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"currency": "must be a 3-letter ISO 4217 currency code"}),
		},
		{name: "fees set", token: getToken(t, env, admin), body: []byte(`{"amount":1500.5,"currency":"cdf"}`), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPut, path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var usr user.User
				unmarshal(t, rec, &usr)
				assert.Equal(t, user.Fees{Amount: 1500.5, Currency: "CDF"}, usr.Fees)
			}
		})
	}
}

func Test_userApi_destroy(t *testing.T) {
	env := setup(t)
	root := testutil.CreateUser(t, env.usrRepo, "Root", "root@test.cd", "", user.RoleSuperAdmin, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", "", "", true)
	adminToken := getToken(t, env, admin)

	tests := []httpTest{
		{name: "admin required", path: "/v1/users/" + student.ID, token: getToken(t, env, student), wantCode: http.StatusForbidden},
		{name: "cannot delete self", path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete higher role", path: "/v1/users/" + root.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot bulk delete self", path: "/v1/users?id=" + student.ID + "&id=" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "deleted", path: "/v1/users/" + student.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "already deleted", path: "/v1/users/" + student.ID, token: adminToken, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodDelete, tt.path, tt.token)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_queryRoles(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)

	rec := env.do(http.MethodGet, "/v1/users/roles", getToken(t, env, admin))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)}, rec)
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", "0ld-P@ssw0rd", "", true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	t.Run("invalid email", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/users/password-reset", "", marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		}, rec)
	})

	t.Run("unknown email sends nothing", func(t *testing.T) {
		env.mailSvc.Reset()
		rec := env.do(http.MethodPost, "/v1/users/password-reset", "", marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.cd"}))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)
		assert.Empty(t, env.mailSvc.SentMessages())
	})

	env.mailSvc.Reset()
	rec := env.do(http.MethodPost, "/v1/users/password-reset", "", marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)

	sent := env.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, student.Email, sent[0].To[0].Address)
	data, ok := sent[0].TemplateData.(map[string]interface{})
	require.True(t, ok)
	uid, _ := data["UID"].(string)
	token, _ := data["Token"].(string)
	require.NotEmpty(t, uid)
	require.NotEmpty(t, token)

	confirm := func(t *testing.T, token, pwd string) *httptest.ResponseRecorder {
		return env.do(http.MethodPost, "/v1/users/password-reset-confirm", "",
			marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: pwd, PasswordConfirm: pwd}))
	}

	t.Run("weak password", func(t *testing.T) {
		rec := confirm(t, token, "12345678")
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		}, rec)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := confirm(t, "HE4TS-sigsig-sig", strongPwd)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("password reset", func(t *testing.T) {
		rec := confirm(t, token, strongPwd)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		}, rec)

		rec = env.do(http.MethodPost, "/v1/users/login", "", marchallObj(t, echoapi.LoginRequest{Email: student.Email, Password: strongPwd}))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("token is single use", func(t *testing.T) {
		rec := confirm(t, token, "N3w-P@ssw0rd!")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
