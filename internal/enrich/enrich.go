// Package enrich generates offer titles, infers referral slot counts, and
// drafts chat replies using a text completion API. Every operation is
// best-effort: a failed completion degrades to a deterministic fallback,
// never to an error the caller has to handle.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// CompletionRequest is one synchronous request/response text completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Completer is the text completion backend. Production uses the Anthropic
// client; tests inject fakes.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Enricher owns the prompt shapes and fallbacks.
type Enricher struct {
	completer Completer
	logger    *slog.Logger
}

// New creates an Enricher backed by the given completer.
func New(completer Completer, logger *slog.Logger) *Enricher {
	return &Enricher{completer: completer, logger: logger}
}

const (
	titleSystem = "You are a marketing specialist who creates engaging, concise referral program titles."
	totalSystem = "You are a data analyst who extracts specific numerical values from text."
)

// Title synthesizes a short promotional title for an offer. On any failure
// it falls back to a deterministic template, so the returned title is always
// usable. The second return reports whether the fallback was used.
func (e *Enricher) Title(ctx context.Context, brand, reward, description string) (string, bool) {
	prompt := fmt.Sprintf(`Create a short, catchy referral offer title for %s based on this information:

Reward: %s
Description: %s

The title should be concise (under 60 characters), enticing, and mention the reward if applicable.
Don't use quotes in your response. Just return the title text.

Example format: "Get £50 with Revolut Referral" or "Free Stock Worth up to £200"`, brand, reward, description)

	out, err := e.completer.Complete(ctx, CompletionRequest{
		System:      titleSystem,
		Prompt:      prompt,
		MaxTokens:   60,
		Temperature: 0.7,
	})
	if err != nil {
		e.logger.Warn("title completion failed, using fallback", "brand", brand, "error", err)
		return FallbackTitle(brand, reward), true
	}

	title := strings.TrimSpace(out)
	if strings.HasPrefix(title, `"`) && strings.HasSuffix(title, `"`) && len(title) >= 2 {
		title = title[1 : len(title)-1]
	}
	if title == "" {
		return FallbackTitle(brand, reward), true
	}
	return title, false
}

// FallbackTitle is the deterministic template used when title synthesis
// fails: "Get <reward> with <brand> Referral" when the reward names a £
// amount, "<brand> Referral Program" otherwise.
func FallbackTitle(brand, reward string) string {
	if strings.Contains(reward, "£") {
		return fmt.Sprintf("Get %s with %s Referral", reward, brand)
	}
	return fmt.Sprintf("%s Referral Program", brand)
}

// Total infers the maximum number of referral slots from unstructured
// instructions/description text. Falls back to a regex scan, then to a
// uniform random value in [3, 6]. The second return reports whether the
// fallback path was used.
func (e *Enricher) Total(ctx context.Context, instructions, description string) (int, bool) {
	prompt := fmt.Sprintf(`Based on the following referral program instructions and description, determine the maximum number of people that can be referred or a reasonable limit around 3-6 if not specified:

Instructions: %s
Description: %s

Look for phrases like "can refer X friends" (meaning X+1 needed), "limited to X" (meaning X needed), "up to X referrals" (meaning X needed), "refer A friend" (meaning 2 needed), etc. etc.
If no specific limit is mentioned, analyze the program and suggest a reasonable limit between 3-6.
Only respond with a number (no text).`, instructions, description)

	out, err := e.completer.Complete(ctx, CompletionRequest{
		System:      totalSystem,
		Prompt:      prompt,
		MaxTokens:   10,
		Temperature: 0.3,
	})
	if err != nil {
		e.logger.Warn("total completion failed, using fallback", "error", err)
		return FallbackTotal(instructions, description), true
	}

	total, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil || total <= 0 {
		return FallbackTotal(instructions, description), true
	}
	return total, false
}

var slotRe = regexp.MustCompile(`(?i)can refer (\d+)|limited to (\d+)|up to (\d+) friends`)

// FallbackTotal scans for slot-count phrases; with no match it picks a
// uniform random integer in the closed range [3, 6].
func FallbackTotal(instructions, description string) int {
	for _, text := range []string{instructions, description} {
		m := slotRe.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, group := range m[1:] {
			if group == "" {
				continue
			}
			if n, err := strconv.Atoi(group); err == nil && n > 0 {
				return n
			}
		}
	}
	return 3 + rand.IntN(4)
}
