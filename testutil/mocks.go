package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// MockHelixServer serves canned Twitch Helix and identity responses. Point a
// HelixClient at HelixURL() and its TokenSource at TokenURL().
type MockHelixServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	calls    atomic.Int64
}

// NewMockHelixServer starts a server that 404s every path until a handler is
// registered for it.
func NewMockHelixServer(t *testing.T) *MockHelixServer {
	t.Helper()
	m := &MockHelixServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockHelixServer) HelixURL() string { return m.URL + "/helix" }
func (m *MockHelixServer) TokenURL() string { return m.URL + "/oauth2/token" }

// Calls counts requests across all paths.
func (m *MockHelixServer) Calls() int64 { return m.calls.Load() }

// MockVideos answers /helix/videos with the videos whose "id" matches the
// request's id parameter.
func (m *MockHelixServer) MockVideos(videos ...map[string]string) {
	m.Handlers["/helix/videos"] = func(w http.ResponseWriter, r *http.Request) {
		want := r.URL.Query().Get("id")
		data := []map[string]string{}
		for _, v := range videos {
			if v["id"] == want {
				data = append(data, v)
			}
		}
		writeJSON(w, map[string]any{"data": data})
	}
}

// MockOAuthToken answers the client-credentials endpoint.
func (m *MockHelixServer) MockOAuthToken(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
