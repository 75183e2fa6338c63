package duckvizctl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-api-key", "k1", "health"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunGenerateSendsQuestionAndDatasets(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/generate" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"code":"result := 1"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "-datasets", "sales, weather", "-preference", "static", "generate", "total", "sales"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got["question"] != "total sales" || got["preference"] != "static" {
		t.Fatalf("body = %v", got)
	}
	datasets, _ := got["datasets"].([]any)
	if len(datasets) != 2 || datasets[1] != "weather" {
		t.Fatalf("datasets = %v", got["datasets"])
	}
}

func TestRunExecuteWritesArtifact(t *testing.T) {
	png := []byte("\x89PNG\r\n")
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/execute" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"execution_id": "e1",
			"kind":         "static",
			"encoding":     "base64",
			"artifact":     base64.StdEncoding.EncodeToString(png),
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "chart.png")
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-out", out, "-session", "s1", "execute", "-"}, Options{
		Stdin:  strings.NewReader("result := chart.AsStatic(fig, \"x\")"),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got["code"] != "result := chart.AsStatic(fig, \"x\")" || got["session_id"] != "s1" {
		t.Fatalf("body = %v", got)
	}
	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(written, png) {
		t.Fatalf("artifact = %q", written)
	}
	if strings.Contains(stdout.String(), base64.StdEncoding.EncodeToString(png)) {
		t.Fatalf("stdout still carries the inline artifact: %s", stdout.String())
	}
}

func TestRunAskCreatesSession(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/v1/sessions":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"session_id":"abc"}`))
		case "/v1/sessions/abc/answer":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["question"] != "plot sales" {
				t.Errorf("question = %v", body["question"])
			}
			_, _ = w.Write([]byte(`{"session_id":"abc","kind":"interactive","artifact":"<html></html>","encoding":"utf-8"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "plot", "sales"}, Options{Stderr: &stderr})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if len(paths) != 2 || paths[0] != "POST /v1/sessions" || paths[1] != "POST /v1/sessions/abc/answer" {
		t.Fatalf("paths = %v", paths)
	}
	if !strings.Contains(stderr.String(), "session: abc") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunResetDeletesSession(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "-session", "abc", "reset"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/sessions/abc" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}

	if code := Run(context.Background(), []string{"-base-url", srv.URL, "reset"}, Options{}); code != 2 {
		t.Fatalf("reset without session exit code = %d", code)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_code":"POLICY_VIOLATION"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "generate", "q"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 422") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {}, {"generate"}, {"execute"}} {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("Run(%v) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%v) expected usage output", args)
		}
	}
}
