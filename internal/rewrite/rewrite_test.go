package rewrite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TobiSchelling/autonews/internal/llm"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	calls    int
	last     llm.Request
}

func (m *mockProvider) Generate(_ context.Context, req llm.Request) (string, error) {
	m.calls++
	m.last = req
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Fed Raises Rates - Reuters", "Fed Raises Rates"},
		{"Plain Headline", "Plain Headline"},
		{"Fed Raises Rates – Reuters", "Fed Raises Rates"},
		{"Fed Raises Rates — Reuters", "Fed Raises Rates"},
		{"Markets Slide - Stocks - Bloomberg", "Markets Slide"},
		{"Self-Driving Cars Expand", "Self-Driving Cars Expand"},
		{"Ends With Dash -", "Ends With Dash -"},
	}
	for _, c := range cases {
		got := CleanTitle(c.in)
		if got != c.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", c.in, got, c.want)
		}
		if again := CleanTitle(got); again != got {
			t.Errorf("CleanTitle not idempotent for %q: %q then %q", c.in, got, again)
		}
	}
}

func TestRewriteSendsPromptOnce(t *testing.T) {
	mock := &mockProvider{response: "  A rewritten story.\n"}
	r := NewRewriter(mock, 0.7, 0)

	out, err := r.Rewrite(context.Background(), "Fed Raises Rates", "The Fed moved.", "Full body text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "A rewritten story." {
		t.Errorf("expected trimmed output, got %q", out)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 call, got %d", mock.calls)
	}
	if mock.last.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", mock.last.Temperature)
	}
	if mock.last.System != systemPrompt {
		t.Errorf("expected system prompt, got %q", mock.last.System)
	}
	for _, want := range []string{"Title: Fed Raises Rates", "Description: The Fed moved.", "Content: Full body text", "400-800 words", "Do NOT restate the title"} {
		if !strings.Contains(mock.last.Prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func TestRewriteFailureReturnsSentinel(t *testing.T) {
	cases := map[string]*mockProvider{
		"provider error": {err: errors.New("timeout")},
		"empty response": {response: "   "},
	}
	for name, mock := range cases {
		r := NewRewriter(mock, 0.7, 0)
		out, err := r.Rewrite(context.Background(), "T", "D", "B")
		if !errors.Is(err, ErrRewriteFailed) {
			t.Errorf("%s: expected ErrRewriteFailed, got %v", name, err)
		}
		if out != FailureSentinel {
			t.Errorf("%s: expected sentinel, got %q", name, out)
		}
		if mock.calls != 1 {
			t.Errorf("%s: expected exactly 1 call (no retry), got %d", name, mock.calls)
		}
	}
}

func TestRewriteWithoutProvider(t *testing.T) {
	r := NewRewriter(nil, 0.7, 0)
	out, err := r.Rewrite(context.Background(), "T", "D", "B")
	if !errors.Is(err, ErrRewriteFailed) || out != FailureSentinel {
		t.Errorf("expected sentinel failure, got %q / %v", out, err)
	}
}

func TestPrepare(t *testing.T) {
	r := NewRewriter(&mockProvider{response: "Body"}, 0.7, 0)
	a, err := r.Prepare(context.Background(), "Chip Rally — The Verge", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Title != "Chip Rally" || a.Body != "Body" || a.Degraded {
		t.Errorf("unexpected article: %+v", a)
	}

	r = NewRewriter(&mockProvider{err: errors.New("down")}, 0.7, 0)
	a, err = r.Prepare(context.Background(), "", "", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if a.Title != "No Title" || a.Body != FailureSentinel || !a.Degraded {
		t.Errorf("unexpected degraded article: %+v", a)
	}
}
