package megacloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"anistream-proxy-go/pkg/logging"

	"github.com/pkg/errors"
)

func testLogger() *logging.Logger {
	return logging.New("error", false, io.Discard)
}

func testNegotiator(client Doer, embedBase string) *Negotiator {
	n := NewNegotiator(client, testLogger(), embedBase, "https://catalog.example")
	n.backoffUnit = time.Millisecond
	return n
}

const embedPage = `<html><script>window.cfg={"_k":"EmbeddedClientKey1234567"};</script></html>`

func TestFetchSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed-2/v3/e-1/abc123" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("k") != "1" {
			t.Errorf("missing k=1 query parameter")
		}
		http.SetCookie(w, &http.Cookie{Name: "edge", Value: "token"})
		fmt.Fprint(w, embedPage)
	}))
	defer srv.Close()

	n := testNegotiator(srv.Client(), srv.URL)
	session, err := n.FetchSession(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FetchSession() error: %v", err)
	}

	if session.ClientKey != "EmbeddedClientKey1234567" {
		t.Errorf("ClientKey = %q", session.ClientKey)
	}
	if session.Cookies["edge"] != "token" {
		t.Errorf("cookie jar = %v", session.Cookies)
	}
}

func TestFetchSessionScriptFallback(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed-2/v3/e-1/abc123":
			fmt.Fprintf(w, `<html><script src="%s/js/player/main.v9.js"></script></html>`, srvURL)
		case "/js/player/main.v9.js":
			fmt.Fprint(w, `var clientKey = "ScriptSourcedKey12345678";`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	n := testNegotiator(srv.Client(), srv.URL)
	session, err := n.FetchSession(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FetchSession() error: %v", err)
	}
	if session.ClientKey != "ScriptSourcedKey12345678" {
		t.Errorf("ClientKey = %q", session.ClientKey)
	}
}

func TestFetchSessionNoKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>bare page</body></html>")
	}))
	defer srv.Close()

	n := testNegotiator(srv.Client(), srv.URL)
	if _, err := n.FetchSession(context.Background(), "abc123"); !errors.Is(err, ErrKeyExtraction) {
		t.Errorf("expected ErrKeyExtraction, got %v", err)
	}
}

func TestGetSourcesRetryOnForbidden(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed-2/v3/e-1/abc123":
			fmt.Fprint(w, embedPage)
		case "/embed-2/v3/e-1/getSources":
			if r.URL.Query().Get("_k") != "EmbeddedClientKey1234567" {
				t.Errorf("getSources missing _k: %s", r.URL.RawQuery)
			}
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"encrypted": false,
				"sources":   []map[string]string{{"file": "https://cdn.example/master.m3u8"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	n := testNegotiator(srv.Client(), srv.URL)
	payload, clientKey, err := n.GetSources(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetSources() error: %v", err)
	}
	if clientKey != "EmbeddedClientKey1234567" {
		t.Errorf("clientKey = %q", clientKey)
	}
	if payload.Encrypted {
		t.Error("payload should be unencrypted")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 getSources calls, got %d", got)
	}
}

func TestGetSourcesExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed-2/v3/e-1/abc123":
			fmt.Fprint(w, embedPage)
		case "/embed-2/v3/e-1/getSources":
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	n := testNegotiator(srv.Client(), srv.URL)
	_, _, err := n.GetSources(context.Background(), "abc123")

	var upstreamErr *UpstreamStatusError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamStatusError, got %v", err)
	}
	if upstreamErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d", upstreamErr.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
}

func TestGetSourcesTerminalStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed-2/v3/e-1/abc123":
			fmt.Fprint(w, embedPage)
		case "/embed-2/v3/e-1/getSources":
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	n := testNegotiator(srv.Client(), srv.URL)
	_, _, err := n.GetSources(context.Background(), "abc123")

	var upstreamErr *UpstreamStatusError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamStatusError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("non-403 status should be terminal, got %d calls", got)
	}
}

func TestGetSourcesCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed-2/v3/e-1/abc123":
			fmt.Fprint(w, embedPage)
		case "/embed-2/v3/e-1/getSources":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	n := testNegotiator(srv.Client(), srv.URL)
	n.backoffUnit = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := n.GetSources(ctx, "abc123")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
