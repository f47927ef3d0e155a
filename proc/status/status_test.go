package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leeineian/minstrel/proc/guild"
)

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	reg := guild.NewRegistry(nil)
	reg.Get(1)
	reg.Get(2)
	e := NewRouter(reg, Options{Downloads: func() int64 { return 4 }})

	rec := get(t, e, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status    string `json:"status"`
		Guilds    int    `json:"guilds"`
		Downloads int64  `json:"downloads"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Guilds != 2 || body.Downloads != 4 {
		t.Errorf("health = %+v, want ok with 2 guilds and 4 downloads", body)
	}
}

func TestGuildRoutes(t *testing.T) {
	reg := guild.NewRegistry([]string{"skip"})
	st := reg.Get(42)
	st.SetChannels(7, 8)
	st.Enqueue(guild.Entry{ID: "dQw4w9WgXcQ"})
	e := NewRouter(reg, Options{})

	tests := []struct {
		path string
		want int
	}{
		{"/api/guilds/42", http.StatusOK},
		{"/api/guilds/43", http.StatusNotFound},
		{"/api/guilds/nope", http.StatusBadRequest},
		{"/api/guilds", http.StatusOK},
	}
	for _, tt := range tests {
		if rec := get(t, e, tt.path, ""); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	var v guildView
	if err := json.Unmarshal(get(t, e, "/api/guilds/42", "").Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.ID != "42" || v.Phase != "idle" || v.VoiceChannel != "7" || v.TextChannel != "8" {
		t.Errorf("guild view = %+v", v)
	}
	if len(v.Pending) != 1 || v.Pending[0] != "dQw4w9WgXcQ" {
		t.Errorf("pending = %v", v.Pending)
	}
}

func TestGuildRoutesRequireToken(t *testing.T) {
	reg := guild.NewRegistry(nil)
	reg.Get(42)
	e := NewRouter(reg, Options{Secret: "s3cret"})

	if rec := get(t, e, "/api/guilds/42", ""); rec.Code == http.StatusOK {
		t.Error("guild route served without a token")
	}
	if rec := get(t, e, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled = %d, want 200", rec.Code)
	}

	bad, err := IssueToken("other", "tester", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := get(t, e, "/api/guilds/42", bad); rec.Code == http.StatusOK {
		t.Error("guild route accepted a token signed with another secret")
	}

	good, err := IssueToken("s3cret", "tester", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := get(t, e, "/api/guilds/42", good); rec.Code != http.StatusOK {
		t.Errorf("GET with valid token = %d, want 200", rec.Code)
	}

	expired, _ := IssueToken("s3cret", "tester", -time.Hour)
	if rec := get(t, e, "/api/guilds/42", expired); rec.Code == http.StatusOK {
		t.Error("guild route accepted an expired token")
	}
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	if _, err := IssueToken("", "x", time.Hour); err == nil {
		t.Error("IssueToken() with empty secret succeeded")
	}
}

func TestDaemonDisabledWithoutAddr(t *testing.T) {
	e := NewRouter(guild.NewRegistry(nil), Options{})
	if ok, _, _ := Daemon(e, "")(t.Context()); ok {
		t.Error("Daemon() enabled with empty addr")
	}
}
