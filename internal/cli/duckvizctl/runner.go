package duckvizctl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Session    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type invocation struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	datasets   []string
	preference string
	session    string
	out        string
	export     bool
	stdin      io.Reader
	stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("duckvizctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "duckviz API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 90s)")
	datasets := fs.String("datasets", "", "comma-separated dataset names (default: all)")
	preference := fs.String("preference", "", "preferred chart kind: interactive, static or declarative")
	session := fs.String("session", defaults.Session, "session id for ask and reset")
	out := fs.String("out", "", "write the rendered artifact to this file")
	export := fs.Bool("export", false, "persist the artifact to the object store (execute only)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	inv := &invocation{
		client:     client,
		baseURL:    strings.TrimRight(*baseURL, "/"),
		apiKey:     strings.TrimSpace(*apiKey),
		datasets:   splitList(*datasets),
		preference: strings.TrimSpace(*preference),
		session:    strings.TrimSpace(*session),
		out:        strings.TrimSpace(*out),
		export:     *export,
		stdin:      stdin,
		stderr:     stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	operands := fs.Args()[1:]
	var (
		status int
		body   []byte
		err    error
	)
	switch command {
	case "health":
		status, body, err = inv.do(ctx, http.MethodGet, "/v1/health", nil)
	case "ready":
		status, body, err = inv.do(ctx, http.MethodGet, "/v1/ready", nil)
	case "datasets":
		status, body, err = inv.do(ctx, http.MethodGet, "/v1/datasets", nil)
	case "generate":
		status, body, err = inv.generate(ctx, operands)
	case "execute":
		status, body, err = inv.execute(ctx, operands)
	case "ask":
		status, body, err = inv.ask(ctx, operands)
	case "reset":
		status, body, err = inv.reset(ctx)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			_, _ = fmt.Fprintf(stderr, "%s\n", usage)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if status >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", status, strings.TrimSpace(string(body)))
		return 1
	}

	if inv.out != "" && (command == "execute" || command == "ask") {
		body, err = writeArtifact(inv.out, body)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "write artifact: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "artifact written to %s\n", inv.out)
	}

	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(stdout, string(body))
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func (inv *invocation) generate(ctx context.Context, operands []string) (int, []byte, error) {
	question := strings.TrimSpace(strings.Join(operands, " "))
	if question == "" {
		return 0, nil, usageError("generate requires a question")
	}
	return inv.do(ctx, http.MethodPost, "/v1/generate", map[string]any{
		"question":   question,
		"datasets":   inv.datasets,
		"preference": inv.preference,
	})
}

// execute reads the script from the named file, or from stdin for "-".
func (inv *invocation) execute(ctx context.Context, operands []string) (int, []byte, error) {
	if len(operands) != 1 {
		return 0, nil, usageError("execute requires exactly one script file (use - for stdin)")
	}
	var (
		code []byte
		err  error
	)
	if operands[0] == "-" {
		code, err = io.ReadAll(inv.stdin)
	} else {
		code, err = os.ReadFile(operands[0])
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read script: %w", err)
	}
	return inv.do(ctx, http.MethodPost, "/v1/execute", map[string]any{
		"code":       string(code),
		"datasets":   inv.datasets,
		"export":     inv.export,
		"session_id": inv.session,
	})
}

// ask opens a session first when none is given and reports its id on
// stderr so follow-up questions can continue it.
func (inv *invocation) ask(ctx context.Context, operands []string) (int, []byte, error) {
	question := strings.TrimSpace(strings.Join(operands, " "))
	if question == "" {
		return 0, nil, usageError("ask requires a question")
	}
	if inv.session == "" {
		status, body, err := inv.do(ctx, http.MethodPost, "/v1/sessions", map[string]any{"datasets": inv.datasets})
		if err != nil || status >= 400 {
			return status, body, err
		}
		var created struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(body, &created); err != nil || created.SessionID == "" {
			return 0, nil, fmt.Errorf("unexpected session response: %s", strings.TrimSpace(string(body)))
		}
		inv.session = created.SessionID
		_, _ = fmt.Fprintf(inv.stderr, "session: %s\n", inv.session)
	}
	return inv.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(inv.session)+"/answer", map[string]any{
		"question": question,
		"datasets": inv.datasets,
	})
}

func (inv *invocation) reset(ctx context.Context) (int, []byte, error) {
	if inv.session == "" {
		return 0, nil, usageError("reset requires -session")
	}
	return inv.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(inv.session), nil)
}

func (inv *invocation) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, inv.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if inv.apiKey != "" {
		req.Header.Set("X-API-Key", inv.apiKey)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// writeArtifact stores the artifact carried by an execution response and
// returns the response with the inline artifact replaced by its size.
func writeArtifact(path string, body []byte) ([]byte, error) {
	var response map[string]any
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	inline, ok := response["artifact"].(string)
	if !ok {
		return nil, fmt.Errorf("response carries no artifact")
	}
	data := []byte(inline)
	if response["encoding"] == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(inline)
		if err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		data = decoded
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	response["artifact"] = fmt.Sprintf("<%d bytes written to %s>", len(data), path)
	return json.Marshal(response)
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: duckvizctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  datasets            GET /v1/datasets")
	_, _ = fmt.Fprintln(w, "  generate <question> POST /v1/generate")
	_, _ = fmt.Fprintln(w, "  execute <file|->    POST /v1/execute")
	_, _ = fmt.Fprintln(w, "  ask <question>      POST /v1/sessions/{session}/answer (creates a session when -session is empty)")
	_, _ = fmt.Fprintln(w, "  reset               DELETE /v1/sessions/{session}")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
