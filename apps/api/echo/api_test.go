package echoapi

import (
	"bytes"
	"encoding/json"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/account"
	"github.com/trezcool/edhub/core/course"
	"github.com/trezcool/edhub/services/logger"
	"github.com/trezcool/edhub/storage/database/inmem"
	"github.com/trezcool/edhub/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	app      Server
	conf     *core.Config
	acctRepo account.Repository
}

func setup(t *testing.T) testApp {
	t.Helper()

	db := inmemdb.NewDB()
	acctRepo := inmemdb.NewAccountRepository(db)

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	conf := &core.Config{
		AppName:              "EdHub",
		Env:                  "TEST",
		SecretKey:            []byte("test-secret"),
		TokenExpirationDelta: 30 * time.Minute,
		MaxUploadSize:        1 << 20,
	}
	trail := testutil.NewTrail(t)
	acctSvc := account.NewService(acctRepo, account.NewTokenBackend(conf), trail)
	courseSvc := course.NewService(account.NewDirectory(acctRepo), inmemdb.NewCourseRepository(db), trail, nil, conf)

	app := NewServer(
		&Options{
			DisableReqLogs: true,
			Conf:           conf,
			Logger:         logsvc.NewConsoleLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags)),
			Validate:       validate,
			Translator:     translator,
			AccountSvc:     acctSvc,
			CourseSvc:      courseSvc,
		},
	)
	return testApp{app: app, conf: conf, acctRepo: acctRepo}
}

func (ta testApp) createAccount(t *testing.T, login, name string) account.Account {
	return testutil.CreateAccount(t, ta.acctRepo, login, name, "", false)
}

func (ta testApp) getToken(t *testing.T, acct account.Account) string {
	token, err := account.NewTokenBackend(ta.conf).Issue(acct)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	return token
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
	wantKind string
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

func newUploadRequest(t *testing.T, path, token, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() failed: %v", err)
	}
	if _, err = fw.Write(content); err != nil {
		t.Fatalf("writing form file failed: %v", err)
	}
	if err = mw.Close(); err != nil {
		t.Fatalf("closing multipart writer failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

// checkCodeAndKind asserts on the status code and, for error responses,
// on the stable error kind in the body.
func checkCodeAndKind(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantKind == "" {
		return
	}
	var appErr core.Error
	decodeBody(t, rec, &appErr)
	if appErr.Kind != tt.wantKind {
		t.Errorf("failed! kind = %v; wantKind %v", appErr.Kind, tt.wantKind)
	}
}

func Test_home(t *testing.T) {
	ta := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ta.app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %v; want %v", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "Welcome to EdHub API!" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func Test_accountApi_register(t *testing.T) {
	ta := setup(t)
	ta.createAccount(t, "taken@test.cd", "Taken")

	payload := func(login, name, pwd string) []byte {
		return marshallObj(t, map[string]string{"login": login, "name": name, "password": pwd})
	}

	tests := []httpTest{
		{name: "New account", body: payload("ben@test.cd", "Ben", "passw0rd!"), wantCode: http.StatusCreated},
		{name: "Duplicate login", body: payload("taken@test.cd", "Again", "passw0rd!"), wantCode: http.StatusForbidden, wantKind: core.KindUserExists},
		{name: "Bad email", body: payload("not-an-email", "Ben", "passw0rd!"), wantCode: http.StatusBadRequest, wantKind: core.KindBadEmail},
		{name: "Weak password", body: payload("eva@test.cd", "Eva", "password"), wantCode: http.StatusBadRequest, wantKind: core.KindWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/accounts/register", "", tt.body)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndKind(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var sess account.Session
				decodeBody(t, rec, &sess)
				if sess.Login != "ben@test.cd" || sess.AccessToken == "" {
					t.Errorf("session = %+v", sess)
				}
			}
		})
	}
}

func Test_accountApi_loginAndMe(t *testing.T) {
	ta := setup(t)
	acct := testutil.CreateAccount(t, ta.acctRepo, "ben@test.cd", "Ben", "passw0rd!", false)

	login := func(pwd string) *httptest.ResponseRecorder {
		body := marshallObj(t, map[string]string{"login": "ben@test.cd", "password": pwd})
		req, rec := newAuthRequest(http.MethodPost, "/v1/accounts/login", "", body)
		ta.app.ServeHTTP(rec, req)
		return rec
	}

	rec := login("nope")
	checkCodeAndKind(t, httpTest{wantCode: http.StatusUnauthorized, wantKind: core.KindInvalidCredentials}, rec)

	rec = login("passw0rd!")
	if rec.Code != http.StatusOK {
		t.Fatalf("login code = %v; body %s", rec.Code, rec.Body.String())
	}
	var sess account.Session
	decodeBody(t, rec, &sess)

	req, rec := newAuthRequest(http.MethodGet, "/v1/accounts/me", sess.AccessToken)
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me code = %v; body %s", rec.Code, rec.Body.String())
	}
	var pub account.PublicAccount
	decodeBody(t, rec, &pub)
	assert.Equal(t, acct.Public(), pub)
}

func Test_authRequired(t *testing.T) {
	ta := setup(t)

	tests := []httpTest{
		{name: "me", method: http.MethodGet, path: "/v1/accounts/me"},
		{name: "account list", method: http.MethodGet, path: "/v1/accounts"},
		{name: "course list", method: http.MethodGet, path: "/v1/courses"},
		{name: "course create", method: http.MethodPost, path: "/v1/courses"},
		{name: "course detail", method: http.MethodGet, path: "/v1/courses/1"},
		{name: "grades", method: http.MethodGet, path: "/v1/courses/1/grades.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, "")
			ta.app.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("code = %v; want %v", rec.Code, http.StatusUnauthorized)
			}
			var herr httpErr
			decodeBody(t, rec, &herr)
			assert.Equal(t, errMissingToken, herr)
		})
	}
}

func Test_authed_deletedAccount(t *testing.T) {
	ta := setup(t)

	// a valid token whose account no longer exists is rejected
	ghost := account.Account{Login: "ghost@test.cd", Name: "Ghost"}
	req, rec := newAuthRequest(http.MethodGet, "/v1/accounts/me", ta.getToken(t, ghost))
	ta.app.ServeHTTP(rec, req)
	checkCodeAndKind(t, httpTest{wantCode: http.StatusNotFound, wantKind: core.KindUserNotFound}, rec)
}

func Test_courseApi_flow(t *testing.T) {
	ta := setup(t)

	teacher := ta.createAccount(t, "teacher@test.cd", "Teacher")
	student := ta.createAccount(t, "student@test.cd", "Student")
	outsider := ta.createAccount(t, "outsider@test.cd", "Outsider")
	teacherToken := ta.getToken(t, teacher)
	studentToken := ta.getToken(t, student)
	outsiderToken := ta.getToken(t, outsider)

	do := func(t *testing.T, method, path, token string, body []byte, wantCode int) *httptest.ResponseRecorder {
		t.Helper()
		req, rec := newAuthRequest(method, path, token, body)
		ta.app.ServeHTTP(rec, req)
		if rec.Code != wantCode {
			t.Fatalf("%s %s code = %v; want %v; body %s", method, path, rec.Code, wantCode, rec.Body.String())
		}
		return rec
	}

	// teacher creates a course
	rec := do(t, http.MethodPost, "/v1/courses", teacherToken, marshallObj(t, map[string]string{"title": "Physics 101"}), http.StatusCreated)
	var crs course.Course
	decodeBody(t, rec, &crs)
	base := "/v1/courses/" + crs.ID

	// enrollment
	do(t, http.MethodPost, base+"/students", teacherToken, marshallObj(t, map[string]string{"login": student.Login}), http.StatusNoContent)

	// outsiders see nothing
	rec = do(t, http.MethodGet, base, outsiderToken, nil, http.StatusForbidden)
	checkCodeAndKind(t, httpTest{wantCode: http.StatusForbidden, wantKind: core.KindNoAccessToCourse}, rec)

	// members see the course in their listing
	rec = do(t, http.MethodGet, "/v1/courses", studentToken, nil, http.StatusOK)
	var listing struct {
		Courses []string `json:"courses"`
	}
	decodeBody(t, rec, &listing)
	assert.Equal(t, []string{crs.ID}, listing.Courses)

	// role introspection
	rec = do(t, http.MethodGet, base+"/role", studentToken, nil, http.StatusOK)
	var roles course.Roles
	decodeBody(t, rec, &roles)
	assert.Equal(t, course.Roles{IsStudent: true}, roles)

	// course content
	rec = do(t, http.MethodPost, base+"/assignments", teacherToken,
		marshallObj(t, map[string]string{"title": "Essay", "description": "write it"}), http.StatusCreated)
	var ass course.Assignment
	decodeBody(t, rec, &ass)
	assBase := base + "/assignments/" + strconv.Itoa(ass.ID)

	rec = do(t, http.MethodPost, base+"/materials", studentToken,
		marshallObj(t, map[string]string{"title": "Notes"}), http.StatusForbidden)
	checkCodeAndKind(t, httpTest{wantCode: http.StatusForbidden, wantKind: core.KindLacksRole}, rec)

	rec = do(t, http.MethodGet, base+"/feed", studentToken, nil, http.StatusOK)
	var feed []course.FeedItem
	decodeBody(t, rec, &feed)
	if len(feed) != 1 || feed[0].Title != "Essay" {
		t.Errorf("feed = %+v", feed)
	}

	// submission and grading round trip
	do(t, http.MethodPut, assBase+"/submissions", studentToken,
		marshallObj(t, map[string]string{"comment": "my essay"}), http.StatusOK)
	rec = do(t, http.MethodPost, assBase+"/submissions/"+student.Login+"/grade", teacherToken,
		marshallObj(t, map[string]string{"grade": "8"}), http.StatusOK)
	var sub course.Submission
	decodeBody(t, rec, &sub)
	if !sub.Grade.Valid || sub.Grade.Int != 8 {
		t.Errorf("grade = %+v", sub.Grade)
	}

	rec = do(t, http.MethodPost, assBase+"/submissions/"+student.Login+"/grade", studentToken,
		marshallObj(t, map[string]string{"grade": "10"}), http.StatusForbidden)
	checkCodeAndKind(t, httpTest{wantCode: http.StatusForbidden, wantKind: core.KindLacksRole}, rec)

	// grade export
	rec = do(t, http.MethodGet, base+"/grades.csv", teacherToken, nil, http.StatusOK)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Login,Public Name,Essay\r\nstudent@test.cd,Student,8\r\n", rec.Body.String())
}

func Test_contentApi_attachments(t *testing.T) {
	ta := setup(t)

	teacher := ta.createAccount(t, "teacher@test.cd", "Teacher")
	student := ta.createAccount(t, "student@test.cd", "Student")
	teacherToken := ta.getToken(t, teacher)
	studentToken := ta.getToken(t, student)

	// course with one material, set up through the API
	req, rec := newAuthRequest(http.MethodPost, "/v1/courses", teacherToken, marshallObj(t, map[string]string{"title": "Physics 101"}))
	ta.app.ServeHTTP(rec, req)
	var crs course.Course
	decodeBody(t, rec, &crs)
	base := "/v1/courses/" + crs.ID

	req, rec = newAuthRequest(http.MethodPost, base+"/students", teacherToken, marshallObj(t, map[string]string{"login": student.Login}))
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("invite code = %v; body %s", rec.Code, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodPost, base+"/materials", teacherToken, marshallObj(t, map[string]string{"title": "Notes"}))
	ta.app.ServeHTTP(rec, req)
	var mat course.Material
	decodeBody(t, rec, &mat)
	matBase := base + "/materials/" + strconv.Itoa(mat.ID)

	// upload as teacher
	req, rec = newUploadRequest(t, matBase+"/files", teacherToken, "notes.txt", []byte("chapter one"))
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload code = %v; body %s", rec.Code, rec.Body.String())
	}
	var att course.Attachment
	decodeBody(t, rec, &att)

	// students cannot upload course content
	req, rec = newUploadRequest(t, matBase+"/files", studentToken, "notes.txt", []byte("nope"))
	ta.app.ServeHTTP(rec, req)
	checkCodeAndKind(t, httpTest{wantCode: http.StatusForbidden, wantKind: core.KindLacksRole}, rec)

	// oversized bodies are rejected at the transport edge
	huge := bytes.Repeat([]byte("a"), int(ta.conf.MaxUploadSize)*2)
	req, rec = newUploadRequest(t, matBase+"/files", teacherToken, "huge.bin", huge)
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload code = %v; body %s", rec.Code, rec.Body.String())
	}

	// but they can list and download
	req, rec = newAuthRequest(http.MethodGet, matBase+"/files", studentToken)
	ta.app.ServeHTTP(rec, req)
	var atts []course.Attachment
	decodeBody(t, rec, &atts)
	assert.Equal(t, []course.Attachment{att}, atts)

	req, rec = newAuthRequest(http.MethodGet, matBase+"/files/"+att.FileID, studentToken)
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download code = %v; body %s", rec.Code, rec.Body.String())
	}
	assert.Equal(t, `attachment; filename="notes.txt"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "chapter one", rec.Body.String())

	req, rec = newAuthRequest(http.MethodGet, matBase+"/files/nope", studentToken)
	ta.app.ServeHTTP(rec, req)
	checkCodeAndKind(t, httpTest{wantCode: http.StatusNotFound, wantKind: core.KindFileNotFound}, rec)
}
