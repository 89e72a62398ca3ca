package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/TobiSchelling/autonews/internal/llm"
)

// FailureSentinel is the body returned when the model could not rewrite an article.
const FailureSentinel = "Error: Could not rewrite article using OpenAI API."

// ErrRewriteFailed marks any failure of the generative rewrite.
var ErrRewriteFailed = errors.New("rewrite failed")

const systemPrompt = "You are a professional news writer."

const rewritePrompt = `Please read the following article and rewrite it in an informative, concise, and professional news-style format. **Do NOT restate the title verbatim as the first line.** Instead, begin with a short introduction. Use 400-800 words (or ~1500 tokens). Keep the essential details.

Title: %s

Description: %s

Content: %s

Rewrite the article while keeping the key details.`

// titleSuffix matches a trailing " - Source", " – Source" or " — Source".
var titleSuffix = regexp.MustCompile(`\s[-–—]\s.*$`)

// CleanTitle strips a trailing separator-delimited suffix such as a
// publication name. Applying it twice gives the same result as once.
func CleanTitle(title string) string {
	return titleSuffix.ReplaceAllString(title, "")
}

// Article is an article ready for publishing.
type Article struct {
	Title string
	Body  string
	// Degraded is set when Body is FailureSentinel rather than model output.
	Degraded bool
}

// Rewriter rewrites articles with an LLM provider.
type Rewriter struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

// NewRewriter creates a rewriter. A nil provider makes every rewrite fail.
func NewRewriter(provider llm.Provider, temperature float64, maxTokens int) *Rewriter {
	return &Rewriter{provider: provider, temperature: temperature, maxTokens: maxTokens}
}

// BuildPrompt returns the user prompt for an article.
func BuildPrompt(title, description, body string) string {
	return fmt.Sprintf(rewritePrompt, title, description, body)
}

// Rewrite sends the article to the model once. On any failure it returns
// FailureSentinel along with an error wrapping ErrRewriteFailed.
func (r *Rewriter) Rewrite(ctx context.Context, title, description, body string) (string, error) {
	if r.provider == nil {
		return FailureSentinel, fmt.Errorf("%w: no LLM provider available", ErrRewriteFailed)
	}

	text, err := r.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      BuildPrompt(title, description, body),
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		log.Printf("LLM call failed: %v", err)
		return FailureSentinel, fmt.Errorf("%w: %v", ErrRewriteFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return FailureSentinel, fmt.Errorf("%w: empty response", ErrRewriteFailed)
	}
	return text, nil
}

// Prepare cleans the title and rewrites the body. When the rewrite fails the
// returned Article carries the sentinel body, Degraded is set, and the error
// is returned so the caller can apply its failure policy.
func (r *Rewriter) Prepare(ctx context.Context, title, description, body string) (Article, error) {
	if title == "" {
		title = "No Title"
	}
	title = CleanTitle(title)

	text, err := r.Rewrite(ctx, title, description, body)
	return Article{Title: title, Body: text, Degraded: err != nil}, err
}
