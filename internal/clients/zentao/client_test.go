package zentao

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/platform/errors"
	platformtesting "github.com/devops-agent/gateway/internal/platform/testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.ZenTaoConfig{
		URL:      srv.URL,
		Account:  "admin",
		Password: "secret",
	}, platformtesting.SetupTestLogger(t))
}

func decodeJSONBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request body: %v", err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

func TestLazyLoginAndTokenHeader(t *testing.T) {
	var loginCalls atomic.Int64
	var gotToken string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api.php/v1/tokens":
			loginCalls.Add(1)
			var creds map[string]string
			decodeJSONBody(t, r, &creds)
			if creds["account"] != "admin" || creds["password"] != "secret" {
				t.Errorf("credentials = %v", creds)
			}
			w.Write([]byte(`{"token": "tok-1"}`))
		case "/api.php/v1/products":
			gotToken = r.Header.Get("Token")
			w.Write([]byte(`{"products": [{"id": 1, "name": "ERP"}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	products, err := client.ListProducts(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListProducts error: %v", err)
	}
	if len(products) != 1 || products[0].Name != "ERP" {
		t.Errorf("products = %+v", products)
	}
	if gotToken != "tok-1" {
		t.Errorf("Token header = %q", gotToken)
	}

	// 第二次调用复用缓存的 token
	if _, err := client.ListProducts(context.Background(), 0); err != nil {
		t.Fatalf("second ListProducts error: %v", err)
	}
	if loginCalls.Load() != 1 {
		t.Errorf("loginCalls = %d, expected token to be cached", loginCalls.Load())
	}
}

func TestExpiredTokenRetriedOnce(t *testing.T) {
	var loginCalls, bugCalls atomic.Int64
	var lastBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api.php/v1/tokens":
			n := loginCalls.Add(1)
			if n == 1 {
				w.Write([]byte(`{"token": "stale"}`))
			} else {
				w.Write([]byte(`{"token": "fresh"}`))
			}
		case "/api.php/v1/products/7/bugs":
			bugCalls.Add(1)
			if r.Header.Get("Token") == "stale" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			decodeJSONBody(t, r, &lastBody)
			w.Write([]byte(`{"id": 42, "title": "闪退", "status": "active"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	bug, err := client.CreateBug(context.Background(), 7, NewBug{Title: "闪退", Steps: "打开即崩"})
	if err != nil {
		t.Fatalf("CreateBug error: %v", err)
	}
	if bug.ID != 42 {
		t.Errorf("bug = %+v", bug)
	}
	if loginCalls.Load() != 2 {
		t.Errorf("loginCalls = %d, expected re-login after 401", loginCalls.Load())
	}
	if bugCalls.Load() != 2 {
		t.Errorf("bugCalls = %d, expected exactly one replay", bugCalls.Load())
	}
	// 重放携带原始请求体
	if lastBody["title"] != "闪退" || lastBody["steps"] != "打开即崩" {
		t.Errorf("replayed body = %v", lastBody)
	}
}

func TestSecond401Propagates(t *testing.T) {
	var loginCalls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api.php/v1/tokens" {
			loginCalls.Add(1)
			w.Write([]byte(`{"token": "always-stale"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.GetBug(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error after repeated 401")
	}
	if errors.StatusOf(err) != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401", errors.StatusOf(err))
	}
	if loginCalls.Load() != 2 {
		t.Errorf("loginCalls = %d, expected exactly two auth attempts", loginCalls.Load())
	}
}

func TestLoginFailureIsAuthError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "账号或密码错误"}`))
	}))

	_, err := client.ListProjects(context.Background(), 0)
	if err == nil {
		t.Fatal("expected login error")
	}
	if !errors.IsKind(err, errors.KindAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestLoginResponseWithoutToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok"}`))
	}))

	_, err := client.ListProducts(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error for token-less login response")
	}
	if !errors.IsKind(err, errors.KindAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestCreateBugDefaultsAndOmissions(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api.php/v1/tokens" {
			w.Write([]byte(`{"token": "tok"}`))
			return
		}
		decodeJSONBody(t, r, &body)
		w.Write([]byte(`{"id": 1, "title": "t"}`))
	}))

	if _, err := client.CreateBug(context.Background(), 3, NewBug{Title: "t"}); err != nil {
		t.Fatalf("CreateBug error: %v", err)
	}
	if body["severity"] != float64(3) || body["pri"] != float64(3) || body["type"] != "codeerror" {
		t.Errorf("defaults not applied: %v", body)
	}
	if _, ok := body["assignedTo"]; ok {
		t.Error("empty assignedTo must be omitted")
	}
}

func TestCreateTaskOmitsEmptyFields(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api.php/v1/tokens" {
			w.Write([]byte(`{"token": "tok"}`))
			return
		}
		decodeJSONBody(t, r, &body)
		w.Write([]byte(`{"id": 9, "name": "联调"}`))
	}))

	task, err := client.CreateTask(context.Background(), 12, NewTask{Name: "联调"})
	if err != nil {
		t.Fatalf("CreateTask error: %v", err)
	}
	if task.ID != 9 {
		t.Errorf("task = %+v", task)
	}
	for _, key := range []string{"assignedTo", "desc"} {
		if _, ok := body[key]; ok {
			t.Errorf("empty %s must be omitted", key)
		}
	}
}

func TestListBugsFilterParams(t *testing.T) {
	var query map[string][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api.php/v1/tokens" {
			w.Write([]byte(`{"token": "tok"}`))
			return
		}
		query = r.URL.Query()
		w.Write([]byte(`{"bugs": []}`))
	}))

	_, err := client.ListBugs(context.Background(), 5, BugFilter{Status: "active", AssignedTo: "wang"})
	if err != nil {
		t.Fatalf("ListBugs error: %v", err)
	}
	if got := query["status"]; len(got) != 1 || got[0] != "active" {
		t.Errorf("status param = %v", got)
	}
	if got := query["assignedTo"]; len(got) != 1 || got[0] != "wang" {
		t.Errorf("assignedTo param = %v", got)
	}
	if got := query["limit"]; len(got) != 1 || got[0] != "20" {
		t.Errorf("limit param = %v", got)
	}
}

func TestPersonUnmarshalVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Person
	}{
		{"对象取 realname", `{"account": "wang", "realname": "王志明"}`, "王志明"},
		{"对象缺 realname 退回 account", `{"account": "wang", "realname": ""}`, "wang"},
		{"字符串原样", `"lihua"`, "lihua"},
		{"数字转文本", `42`, "42"},
		{"null 为空", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Person
			if err := sonic.Unmarshal([]byte(tt.in), &p); err != nil {
				t.Fatalf("unmarshal %q: %v", tt.in, err)
			}
			if p != tt.want {
				t.Errorf("Person(%s) = %q, want %q", tt.in, p, tt.want)
			}
		})
	}
}

func TestListProjectsNormalizesPM(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api.php/v1/tokens" {
			w.Write([]byte(`{"token": "tok"}`))
			return
		}
		w.Write([]byte(`{"projects": [
			{"id": 1, "name": "商城", "status": "doing", "PM": {"account": "wang", "realname": "王志明"}},
			{"id": 2, "name": "中台", "status": "wait", "PM": "lihua"},
			{"id": 3, "name": "归档", "status": "closed", "PM": null}
		]}`))
	}))

	projects, err := client.ListProjects(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListProjects error: %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("projects = %+v", projects)
	}
	if projects[0].PM != "王志明" || projects[1].PM != "lihua" || projects[2].PM != "" {
		t.Errorf("PM normalization: %q %q %q", projects[0].PM, projects[1].PM, projects[2].PM)
	}
}
