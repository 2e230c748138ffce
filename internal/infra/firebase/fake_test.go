package firebase_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/infra/firebase"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
)

const testSecret = "s3cret"

// fakeDatabase emulates the Realtime Database REST surface used by Store:
// GET/PUT/PATCH/DELETE on <path>.json and text/event-stream GETs.
type fakeDatabase struct {
	mu       sync.Mutex
	root     map[string]any
	watchers []chan string
	requests atomic.Int32
	// failNext makes the next n non-stream requests answer 503.
	failNext atomic.Int32
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{root: map[string]any{}}
}

func splitPath(p string) []string {
	p = strings.TrimSuffix(strings.Trim(p, "/"), ".json")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (f *fakeDatabase) get(path []string) any {
	var node any = f.root
	for _, seg := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

func (f *fakeDatabase) parent(path []string) map[string]any {
	node := f.root
	for _, seg := range path[:len(path)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	return node
}

func (f *fakeDatabase) notify(path string) {
	for _, w := range f.watchers {
		select {
		case w <- path:
		default:
		}
	}
}

func (f *fakeDatabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("auth") != testSecret {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Permission denied"}`))
		return
	}
	path := splitPath(r.URL.Path)

	if r.Method == http.MethodGet && r.Header.Get("Accept") == "text/event-stream" {
		f.stream(w, r, path)
		return
	}

	f.requests.Add(1)
	if f.failNext.Load() > 0 {
		f.failNext.Add(-1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(f.get(path))
		return
	case http.MethodPut:
		var v any
		_ = json.NewDecoder(r.Body).Decode(&v)
		f.parent(path)[path[len(path)-1]] = v
	case http.MethodPatch:
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)
		p := f.parent(path)
		node, ok := p[path[len(path)-1]].(map[string]any)
		if !ok {
			node = map[string]any{}
			p[path[len(path)-1]] = node
		}
		for k, v := range patch {
			node[k] = v
		}
	case http.MethodDelete:
		delete(f.parent(path), path[len(path)-1])
	}
	f.notify("/" + strings.Join(path[2:], "/"))
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeDatabase) stream(w http.ResponseWriter, r *http.Request, path []string) {
	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")

	f.mu.Lock()
	tree, _ := json.Marshal(f.get(path))
	ch := make(chan string, 16)
	f.watchers = append(f.watchers, ch)
	f.mu.Unlock()

	fmt.Fprintf(w, "event: put\ndata: {\"path\":\"/\",\"data\":%s}\n\n", tree)
	fmt.Fprint(w, "event: keep-alive\ndata: null\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case changed := <-ch:
			fmt.Fprintf(w, "event: patch\ndata: {\"path\":%q,\"data\":{}}\n\n", changed)
			flusher.Flush()
		}
	}
}

func newTestStore(t *testing.T, db *fakeDatabase, secret string) (*firebase.Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(db)
	t.Cleanup(srv.Close)

	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}
	client := firebase.NewClient(srv.Client(), srv.URL, secret, resilience.NewCircuitBreaker("firebase-test", nil), cfg, zap.NewNop())
	return firebase.NewStore(client, 4, zap.NewNop()), srv
}

func requireEventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}
