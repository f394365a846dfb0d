package chatbridge

import "unicode"

// TokenCounter estimates token count for a string.
// Callers can plug in an exact tokenizer; default is ApproxCounter.
type TokenCounter interface {
	Count(text string) (int, error)
}

// ApproxCounter estimates tokens without a vocabulary: each Han, Hiragana, Katakana or
// Hangul rune counts as one token, other non-space runs count as ceil(runes/CharsPerToken).
// Zero value uses 4 chars per token.
type ApproxCounter struct {
	CharsPerToken int
}

// Count returns the estimated token count of text. It never fails.
func (c *ApproxCounter) Count(text string) (int, error) {
	cpt := c.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	total, run := 0, 0
	flush := func() {
		total += (run + cpt - 1) / cpt
		run = 0
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			flush()
			total++
		default:
			run++
		}
	}
	flush()
	return total, nil
}

// Usage is the token accounting attached to a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CountUsage returns usage for prompt and completion text. A nil counter uses ApproxCounter.
func CountUsage(tc TokenCounter, prompt, completion string) Usage {
	if tc == nil {
		tc = &ApproxCounter{}
	}
	p, err := tc.Count(prompt)
	if err != nil {
		p = 0
	}
	c, err := tc.Count(completion)
	if err != nil {
		c = 0
	}
	return Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}
