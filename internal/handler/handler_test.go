package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/examforge/examforge/internal/i18n"
	"github.com/examforge/examforge/internal/lifecycle"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *store.Memory) {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	mem := store.NewMemory()
	h := New(mem, lifecycle.NewManager(mem), nil, cfg)

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mem
}

// client is a cookie-carrying API client for tests. It refreshes the CSRF
// token before every mutating request, the way a browser app would.
type client struct {
	t   *testing.T
	srv *httptest.Server
	c   *http.Client
}

func newClient(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &client{t: t, srv: srv, c: &http.Client{Jar: jar}}
}

func (c *client) get(path string) *http.Response {
	c.t.Helper()
	resp, err := c.c.Get(c.srv.URL + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (c *client) csrfToken() string {
	c.t.Helper()
	resp := c.get("/api/auth/me")
	resp.Body.Close()
	u, _ := url.Parse(c.srv.URL)
	for _, ck := range c.c.Jar.Cookies(u) {
		if ck.Name == "csrf_token" {
			return ck.Value
		}
	}
	c.t.Fatal("no csrf cookie set")
	return ""
}

func (c *client) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, buf)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", c.csrfToken())
	resp, err := c.c.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (c *client) register(name, email, role, classroom string) model.User {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"name": name, "email": email, "password": "correct-horse", "role": role,
		"classroom": classroom, "student_code": "S-" + name,
	})
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	return decodeBody[model.User](c.t, resp)
}

func validExamBody() map[string]any {
	return map[string]any{
		"title":             "Biology Midterm",
		"subject":           "Biology",
		"target_classrooms": []string{"10A"},
		"questions": []map[string]any{
			{"id": "q1", "type": "mcq", "text": "Pick one", "marks": 5,
				"options": []string{"A", "B", "C", "D"}, "correct_option_index": 1},
			{"id": "q2", "type": "fill_blank", "text": "Capital of France?", "marks": 3,
				"correct_answer_text": "Paris"},
		},
	}
}

func TestRegisterLoginMe(t *testing.T) {
	srv, _ := newTestServer(t, Config{AdminEmail: "root@school.example"})
	c := newClient(t, srv)

	u := c.register("Tina", "tina@school.example", "teacher", "")
	if u.Role != model.RoleTeacher {
		t.Errorf("role = %q, want teacher", u.Role)
	}

	// Registering the same email again conflicts.
	resp := c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Tina 2", "email": "tina@school.example", "password": "correct-horse", "role": "teacher",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// The configured admin email registers as admin regardless of role.
	admin := c.register("Root", "Root@School.example", "teacher", "")
	if admin.Role != model.RoleAdmin {
		t.Errorf("admin email role = %q, want admin", admin.Role)
	}

	// Fresh client: wrong password, then a real login.
	c2 := newClient(t, srv)
	resp = c2.do(http.MethodPost, "/api/auth/login", map[string]any{
		"email": "tina@school.example", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", resp.StatusCode)
	}
	body := decodeBody[errorResponse](t, resp)
	if body.Error != "Invalid email or password" {
		t.Errorf("bad login message = %q", body.Error)
	}

	resp = c2.do(http.MethodPost, "/api/auth/login", map[string]any{
		"email": "tina@school.example", "password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c2.get("/api/auth/me")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	me := decodeBody[model.User](t, resp)
	if me.Email != "tina@school.example" {
		t.Errorf("me email = %q", me.Email)
	}
}

func TestCSRFRequired(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/auth/login",
		strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST without CSRF: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRoleGating(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	c := newClient(t, srv)
	c.register("Sam", "sam@school.example", "student", "10A")

	resp := c.do(http.MethodPost, "/api/teacher/exams", validExamBody())
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("student on teacher route: status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/api/admin/users")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("student on admin route: status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = newClient(t, srv).do(http.MethodPost, "/api/teacher/exams", validExamBody())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous on teacher route: status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateExamValidation(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	c := newClient(t, srv)
	c.register("Tina", "tina@school.example", "teacher", "")

	body := validExamBody()
	body["title"] = ""
	resp := c.do(http.MethodPost, "/api/teacher/exams", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	e := decodeBody[errorResponse](t, resp)
	if e.Error != "Please enter an exam title" {
		t.Errorf("error = %q", e.Error)
	}

	// Per-question errors carry the 1-based question number.
	body = validExamBody()
	body["questions"] = []map[string]any{
		{"id": "q1", "type": "mcq", "text": "ok", "marks": 5,
			"options": []string{"A", "B"}, "correct_option_index": 0},
		{"id": "q2", "type": "short_answer", "text": "   ", "marks": 2},
	}
	resp = c.do(http.MethodPost, "/api/teacher/exams", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	e = decodeBody[errorResponse](t, resp)
	if e.Error != "Question 2 has no text" {
		t.Errorf("error = %q", e.Error)
	}
}

func TestExamOwnership(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	owner := newClient(t, srv)
	owner.register("Tina", "tina@school.example", "teacher", "")

	resp := owner.do(http.MethodPost, "/api/teacher/exams", validExamBody())
	created := decodeBody[model.Exam](t, resp)

	other := newClient(t, srv)
	other.register("Tom", "tom@school.example", "teacher", "")
	resp = other.do(http.MethodDelete, "/api/teacher/exams/"+created.ID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign delete status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStudentExamFlow(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	teacher := newClient(t, srv)
	teacher.register("Tina", "tina@school.example", "teacher", "")
	resp := teacher.do(http.MethodPost, "/api/teacher/exams", validExamBody())
	created := decodeBody[model.Exam](t, resp)
	resp = teacher.do(http.MethodPost, "/api/teacher/exams/"+created.ID+"/publish",
		map[string]any{"published": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	studentC := newClient(t, srv)
	studentC.register("Sam", "sam@school.example", "student", "10A")

	// Listing shows the exam as active with no question bodies.
	resp = studentC.get("/api/student/exams")
	listing := decodeBody[[]studentExam](t, resp)
	if len(listing) != 1 {
		t.Fatalf("listed %d exams, want 1", len(listing))
	}
	if listing[0].Availability != "active" {
		t.Errorf("availability = %q, want active", listing[0].Availability)
	}
	if listing[0].QuestionCount != 2 || listing[0].TotalMarks != 8 {
		t.Errorf("listing = %+v", listing[0])
	}

	// Starting returns the questions with answer keys stripped.
	resp = studentC.do(http.MethodPost, "/api/student/exams/"+created.ID+"/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	started := decodeBody[startResponse](t, resp)
	for _, q := range started.Exam.Questions {
		if q.CorrectAnswerText != "" || q.CorrectOptionIndex != 0 || q.Keywords != nil {
			t.Errorf("answer key leaked in %+v", q)
		}
	}

	resp = studentC.do(http.MethodPut,
		"/api/student/exams/"+created.ID+"/answers/q1", map[string]any{"answer": "B"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("save answer status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = studentC.do(http.MethodPost, "/api/student/exams/"+created.ID+"/submit",
		map[string]any{"answers": map[string]string{"q2": " paris "}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	sub := decodeBody[model.Submission](t, resp)
	if sub.AutoScore != 8 || sub.TotalScore != 8 {
		t.Errorf("scores = %d/%d, want 8/8", sub.AutoScore, sub.TotalScore)
	}

	// A second submit conflicts, and the listing flips to submitted.
	resp = studentC.do(http.MethodPost, "/api/student/exams/"+created.ID+"/submit",
		map[string]any{"answers": map[string]string{}})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second submit status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = studentC.get("/api/student/exams")
	listing = decodeBody[[]studentExam](t, resp)
	if listing[0].Availability != "submitted" {
		t.Errorf("availability after submit = %q", listing[0].Availability)
	}

	// Teacher grades the fill-in manually; total = auto + manual.
	resp = teacher.do(http.MethodPost, "/api/teacher/submissions/"+sub.ID+"/score",
		map[string]any{"manual_score": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("score status = %d", resp.StatusCode)
	}
	graded := decodeBody[model.Submission](t, resp)
	if graded.TotalScore != 10 || !graded.Graded {
		t.Errorf("graded = %+v", graded)
	}

	resp = teacher.get("/api/teacher/exams/" + created.ID + "/summary")
	sum := decodeBody[examSummary](t, resp)
	if sum.Submissions != 1 || sum.Graded != 1 || sum.MaxMarks != 8 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.AverageScore != 10 || sum.HighestScore != 10 {
		t.Errorf("summary scores = %+v", sum)
	}

	// Export carries the BOM and one quoted row per submission.
	resp = teacher.get("/api/teacher/exams/" + created.ID + "/export")
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Errorf("export content type = %q", got)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	csv := string(raw)
	if !strings.HasPrefix(csv, "\uFEFF") {
		t.Error("export missing BOM")
	}
	if !strings.Contains(csv, `"Sam"`) || !strings.Contains(csv, `"10"`) {
		t.Errorf("export body: %s", csv)
	}
}

func TestStartOutsideWindow(t *testing.T) {
	srv, mem := newTestServer(t, Config{})

	teacher := newClient(t, srv)
	tu := teacher.register("Tina", "tina@school.example", "teacher", "")

	past := time.Now().Add(-time.Hour)
	earlier := past.Add(-time.Hour)
	e := model.Exam{
		ID: "expired-exam", TeacherID: tu.ID, Title: "Old", Subject: "History",
		TargetClassrooms: []string{"10A"},
		Questions: []model.Question{
			{ID: "q1", Type: model.TrueFalse, Text: "T?", Marks: 1, CorrectAnswerText: "True"},
		},
		Published: true, ValidFrom: &earlier, ValidUntil: &past, CreatedAt: earlier,
	}
	if err := mem.PutExam(e); err != nil {
		t.Fatalf("PutExam: %v", err)
	}

	studentC := newClient(t, srv)
	studentC.register("Sam", "sam@school.example", "student", "10A")

	resp := studentC.get("/api/student/exams")
	listing := decodeBody[[]studentExam](t, resp)
	if len(listing) != 1 || listing[0].Availability != "expired" {
		t.Fatalf("listing = %+v", listing)
	}

	resp = studentC.do(http.MethodPost, "/api/student/exams/expired-exam/start", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("start expired status = %d, want 403", resp.StatusCode)
	}
	body := decodeBody[errorResponse](t, resp)
	if body.Error != "This exam is not available right now" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestStudentCannotSeeForeignClassroomExam(t *testing.T) {
	srv, mem := newTestServer(t, Config{})

	e := model.Exam{
		ID: "other-class", TeacherID: "t1", Title: "Quiz", Subject: "Math",
		TargetClassrooms: []string{"11C"},
		Questions: []model.Question{
			{ID: "q1", Type: model.TrueFalse, Text: "T?", Marks: 1, CorrectAnswerText: "True"},
		},
		Published: true, CreatedAt: time.Now(),
	}
	if err := mem.PutExam(e); err != nil {
		t.Fatalf("PutExam: %v", err)
	}

	c := newClient(t, srv)
	c.register("Sam", "sam@school.example", "student", "10A")

	resp := c.get("/api/student/exams")
	listing := decodeBody[[]studentExam](t, resp)
	if len(listing) != 0 {
		t.Errorf("listed %d exams, want 0", len(listing))
	}

	resp = c.do(http.MethodPost, "/api/student/exams/other-class/start", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("start foreign exam status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSuggestUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	c := newClient(t, srv)
	c.register("Tina", "tina@school.example", "teacher", "")

	resp := c.do(http.MethodPost, "/api/teacher/questions/suggest",
		map[string]any{"subject": "Biology", "topic": "cells", "type": "mcq"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("suggest status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Config{AdminEmail: "root@school.example"})

	admin := newClient(t, srv)
	admin.register("Root", "root@school.example", "teacher", "")

	c := newClient(t, srv)
	victim := c.register("Sam", "sam@school.example", "student", "10A")

	resp := admin.get("/api/admin/stats")
	stats := decodeBody[adminStats](t, resp)
	if stats.Users != 2 || stats.Admins != 1 || stats.Students != 1 {
		t.Errorf("stats = %+v", stats)
	}

	resp = admin.do(http.MethodDelete, "/api/admin/users/"+victim.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete user status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = admin.get("/api/admin/users")
	users := decodeBody[[]model.User](t, resp)
	if len(users) != 1 {
		t.Errorf("%d users left, want 1", len(users))
	}
}
