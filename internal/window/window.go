// Package window packs article texts into batches that fit a model's
// context window.
package window

import "unicode/utf8"

// Counter reports how many model tokens a text occupies.
type Counter interface {
	CountTokens(text string) int
}

// Item is one input text as it was admitted to a batch.
type Item struct {
	Index          int    // position in the input slice
	Text           string // possibly truncated
	Tokens         int    // tokens in Text
	OriginalTokens int    // tokens in the untruncated input
}

// Truncated reports whether the text was shortened to fit.
func (it Item) Truncated() bool { return it.Tokens < it.OriginalTokens }

// Batch is a window of items ready to send to the model together.
type Batch struct {
	Items  []Item
	Tokens int
}

// Texts returns the (possibly truncated) item texts in order.
func (b Batch) Texts() []string {
	out := make([]string, len(b.Items))
	for i, it := range b.Items {
		out[i] = it.Text
	}
	return out
}

// Batcher splits texts into batches under a token budget.
//
// An eighth of the budget is held in reserve for the prompt and response,
// and no single text may use more than an eighth of the budget; longer
// texts are halved until they fit.
type Batcher struct {
	Budget  int
	Counter Counter

	// StopAfterFirstFlush returns after the first batch is emitted and
	// drops the remaining input.
	StopAfterFirstFlush bool
}

// Batches packs texts in input order. Every text appears in exactly one
// batch unless StopAfterFirstFlush cuts the run short.
func (b *Batcher) Batches(texts []string) []Batch {
	if b.Budget <= 0 || len(texts) == 0 {
		return nil
	}

	perItem := b.Budget / 8
	limit := b.Budget - b.Budget/8

	var batches []Batch
	var cur Batch
	target := perItem

	flush := func() bool {
		batches = append(batches, cur)
		cur = Batch{}
		target = perItem
		return b.StopAfterFirstFlush
	}

	for i, text := range texts {
		if remaining := b.Budget - cur.Tokens; remaining < target {
			target = remaining
		}

		orig := b.Counter.CountTokens(text)
		item := b.admit(i, text, orig, target)

		// Never let one item push a non-empty window past the limit.
		if len(cur.Items) > 0 && cur.Tokens+item.Tokens > limit {
			if flush() {
				return batches
			}
			item = b.admit(i, text, orig, target)
		}

		cur.Items = append(cur.Items, item)
		cur.Tokens += item.Tokens

		if cur.Tokens >= limit || i == len(texts)-1 {
			if flush() {
				return batches
			}
		}
	}
	return batches
}

func (b *Batcher) admit(index int, text string, tokens, target int) Item {
	it := Item{Index: index, Text: text, Tokens: tokens, OriginalTokens: tokens}
	if tokens > target {
		it.Text, it.Tokens = Fit(text, target, b.Counter)
	}
	return it
}

// Fit halves text until it occupies at most limit tokens, returning the
// shortened text and its token count.
func Fit(text string, limit int, counter Counter) (string, int) {
	n := counter.CountTokens(text)
	for n > limit && text != "" {
		text = halve(text)
		n = counter.CountTokens(text)
	}
	return text, n
}

// halve cuts s to its first half without splitting a UTF-8 sequence.
func halve(s string) string {
	cut := len(s) / 2
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
