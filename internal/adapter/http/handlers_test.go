package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	adapthttp "weighttracker/internal/adapter/http"
	"weighttracker/internal/adapter/memory"
	"weighttracker/internal/app"
	"weighttracker/internal/observability"
	"weighttracker/internal/worker"
)

// ---------------------------------------------------------------------------
// Test-server helper
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db := memory.New()
	authSvc := app.NewAuthService(db, db.NewSessionRepo()).WithPasswordCost(bcrypt.MinCost)
	tracker := app.NewTracker(authSvc, app.NewWeightService(db), worker.New(8, nil), db)

	srv := adapthttp.New(tracker, authSvc, adapthttp.Options{
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tracker.Shutdown(ctx)
	})
	return ts
}

// newClient returns a client with its own cookie jar.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

// signUp registers and logs in username, returning a client holding the
// session cookie.
func signUp(t *testing.T, ts *httptest.Server, username string) *http.Client {
	t.Helper()
	c := newClient(t)
	creds := map[string]string{"username": username, "password": "secret1!x"}

	resp := do(t, c, http.MethodPost, ts.URL+"/api/auth/register", creds)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	resp = do(t, c, http.MethodPost, ts.URL+"/api/auth/login", creds)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	return c
}

func do(t *testing.T, c *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body["ok"])
	}
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t)

	resp := do(t, c, http.MethodPost, ts.URL+"/api/auth/register", map[string]string{"username": "alice", "password": "secret1!x"})
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if body["userId"] == nil {
		t.Fatal("expected userId in response")
	}

	resp = do(t, c, http.MethodPost, ts.URL+"/api/auth/register", map[string]string{"username": "alice", "password": "secret1!x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", resp.StatusCode)
	}

	resp = do(t, c, http.MethodPost, ts.URL+"/api/auth/register", map[string]string{"username": "bob", "password": "secret1!x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short username: expected 400, got %d", resp.StatusCode)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts := newTestServer(t)
	signUp(t, ts, "alice")
	c := newClient(t)

	for _, creds := range []map[string]string{
		{"username": "alice", "password": "wrong1!xx"},
		{"username": "nobody", "password": "secret1!x"},
	} {
		resp := do(t, c, http.MethodPost, ts.URL+"/api/auth/login", creds)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 for %s, got %d", creds["username"], resp.StatusCode)
		}
	}
}

func TestPasswordCheckAndConfig(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t)

	body := decodeBody(t, do(t, c, http.MethodPost, ts.URL+"/api/auth/password-check", map[string]string{"password": "weak"}))
	if body["valid"] != false {
		t.Errorf("expected valid=false, got %v", body["valid"])
	}
	body = decodeBody(t, do(t, c, http.MethodPost, ts.URL+"/api/auth/password-check", map[string]string{"password": "secret1!x"}))
	if body["valid"] != true {
		t.Errorf("expected valid=true, got %v", body["valid"])
	}

	body = decodeBody(t, do(t, c, http.MethodGet, ts.URL+"/api/auth/config", nil))
	if body["sso_enabled"] != false {
		t.Errorf("expected sso disabled, got %v", body["sso_enabled"])
	}

	resp := do(t, c, http.MethodGet, ts.URL+"/api/auth/sso/login", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 with sso disabled, got %d", resp.StatusCode)
	}
}

func TestWeights_RequireAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, newClient(t), http.MethodGet, ts.URL+"/api/weights", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWeights_AddAndList(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")

	for i, w := range []float64{200, 199, 198, 197, 196, 195, 194} {
		date := time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		resp := do(t, c, http.MethodPost, ts.URL+"/api/weights", map[string]any{"date": date, "weight": w, "goal": 190})
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add %s: expected 201, got %d", date, resp.StatusCode)
		}
	}

	resp := do(t, c, http.MethodGet, ts.URL+"/api/weights", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	entries := body["entries"].([]any)
	if len(entries) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(entries))
	}
	first := entries[0].(map[string]any)
	if first["date"] != "2024-01-01" {
		t.Errorf("expected ascending order, first date %v", first["date"])
	}
	progress := first["progress"].(map[string]any)
	if progress["achieved"] != false || progress["remaining"] != 10.0 {
		t.Errorf("unexpected progress: %v", progress)
	}

	avg := body["movingAverage"].([]any)
	if len(avg) != 1 || avg[0] != 197.0 {
		t.Errorf("expected [197], got %v", avg)
	}
	if body["window"] != 7.0 {
		t.Errorf("expected window 7, got %v", body["window"])
	}
}

func TestWeights_KilogramInput(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")

	resp := do(t, c, http.MethodPost, ts.URL+"/api/weights", map[string]any{"date": "2024-01-01", "weight": 80, "unit": "kg"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	body := decodeBody(t, do(t, c, http.MethodGet, ts.URL+"/api/weights/by-date/2024-01-01", nil))
	w := body["weight"].(float64)
	if w < 176.36 || w > 176.38 {
		t.Errorf("expected ~176.37 lb, got %v", w)
	}

	resp = do(t, c, http.MethodPost, ts.URL+"/api/weights", map[string]any{"date": "2024-01-02", "weight": 80, "unit": "stone"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown unit: expected 400, got %d", resp.StatusCode)
	}
}

func TestWeights_Validation(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"weight too low", map[string]any{"date": "2024-01-01", "weight": 19}},
		{"future date", map[string]any{"date": "2999-01-01", "weight": 150}},
		{"bad date", map[string]any{"date": "Jan 1", "weight": 150}},
		{"unknown field", map[string]any{"date": "2024-01-01", "weight": 150, "note": "x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, c, http.MethodPost, ts.URL+"/api/weights", tc.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestWeights_BatchAllOrNothing(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")

	resp := do(t, c, http.MethodPost, ts.URL+"/api/weights/batch", map[string]any{"entries": []map[string]any{
		{"date": "2024-01-01", "weight": 150},
		{"date": "2024-01-02", "weight": 500},
	}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeBody(t, do(t, c, http.MethodGet, ts.URL+"/api/weights", nil))
	if n := len(body["entries"].([]any)); n != 0 {
		t.Fatalf("expected no entries, got %d", n)
	}

	resp = do(t, c, http.MethodPost, ts.URL+"/api/weights/batch", map[string]any{"entries": []map[string]any{
		{"date": "2024-01-01", "weight": 150},
		{"date": "2024-01-02", "weight": 149},
	}})
	body = decodeBody(t, resp)
	if resp.StatusCode != http.StatusCreated || body["count"] != 2.0 {
		t.Fatalf("expected 201 with count 2, got %d %v", resp.StatusCode, body)
	}
}

func TestWeights_ByDateNotFound(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")

	resp := do(t, c, http.MethodGet, ts.URL+"/api/weights/by-date/2024-01-01", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestWeights_DeleteScopedToOwner(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts, "alice")
	bob := signUp(t, ts, "bobby")

	body := decodeBody(t, do(t, alice, http.MethodPost, ts.URL+"/api/weights", map[string]any{"date": "2024-01-01", "weight": 150}))
	id := int64(body["id"].(float64))
	url := ts.URL + "/api/weights/" + jsonNumber(id)

	resp := do(t, bob, http.MethodDelete, url, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other user: expected 404, got %d", resp.StatusCode)
	}
	resp = do(t, alice, http.MethodDelete, url, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", resp.StatusCode)
	}
	resp = do(t, alice, http.MethodDelete, ts.URL+"/api/weights/abc", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", resp.StatusCode)
	}
}

func TestAccountDelete(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")

	resp := do(t, c, http.MethodPost, ts.URL+"/api/weights", map[string]any{"date": "2024-01-01", "weight": 150})
	resp.Body.Close()

	body := decodeBody(t, do(t, c, http.MethodDelete, ts.URL+"/api/account", nil))
	if body["deleted"] != true {
		t.Fatalf("expected deleted=true, got %v", body)
	}

	resp = do(t, c, http.MethodGet, ts.URL+"/api/weights", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after account deletion, got %d", resp.StatusCode)
	}

	// The username can be registered again and starts empty.
	c = signUp(t, ts, "alice")
	body = decodeBody(t, do(t, c, http.MethodGet, ts.URL+"/api/weights", nil))
	if n := len(body["entries"].([]any)); n != 0 {
		t.Fatalf("expected no entries for new account, got %d", n)
	}
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")

	resp := do(t, c, http.MethodPost, ts.URL+"/api/auth/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp = do(t, c, http.MethodGet, ts.URL+"/api/weights", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "go_goroutines") {
		t.Error("expected default collectors in /metrics output")
	}
}

func TestStream(t *testing.T) {
	ts := newTestServer(t)
	c := signUp(t, ts, "alice")
	other := signUp(t, ts, "bobby")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/weights/stream"
	header := http.Header{}
	for _, ck := range c.Jar.Cookies(mustURL(t, ts.URL)) {
		header.Add("Cookie", ck.String())
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	type frame struct {
		Channel string `json:"channel"`
		Data    struct {
			UserID  int64            `json:"userId"`
			Entries []map[string]any `json:"entries"`
			Values  []float64        `json:"values"`
		} `json:"data"`
	}
	// waitFor reads frames until one on channel carries n entries.
	waitFor := func(n int) frame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				t.Fatalf("read: %v", err)
			}
			if f.Channel == "entries" && len(f.Data.Entries) == n {
				return f
			}
		}
	}

	waitFor(0)

	// Another user's mutation, published right after ours, neither reaches
	// this stream nor displaces our own update.
	r := do(t, c, http.MethodPost, ts.URL+"/api/weights", map[string]any{"date": "2024-01-01", "weight": 150})
	r.Body.Close()
	r = do(t, other, http.MethodPost, ts.URL+"/api/weights", map[string]any{"date": "2024-01-01", "weight": 180})
	r.Body.Close()

	f := waitFor(1)
	if f.Data.UserID == 0 {
		t.Fatal("expected the frame to name its user")
	}
	if f.Data.Entries[0]["weight"] != 150.0 {
		t.Fatalf("expected own entry, got %v", f.Data.Entries[0])
	}
}
