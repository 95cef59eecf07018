package inference

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/analytica/internal/classifier"
)

type tokenizeRequest struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	MaxLength  int    `json:"max_length"`
	Truncation bool   `json:"truncation"`
}

type tokenizeResponse struct {
	InputIDs      []int64 `json:"input_ids"`
	AttentionMask []int64 `json:"attention_mask"`
}

// Tokenizer calls POST /tokenize on the tokenizer sidecar.
type Tokenizer struct {
	client    *resty.Client
	model     string
	maxTokens int
}

// Encode tokenizes text for the configured model. The sidecar is asked to
// truncate to maxTokens; an encoding that still comes back longer is cut
// locally, keeping the final end-of-sequence id.
func (t *Tokenizer) Encode(ctx context.Context, text string) (classifier.Encoding, error) {
	var out tokenizeResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(tokenizeRequest{Text: text, Model: t.model, MaxLength: t.maxTokens, Truncation: true}).
		SetResult(&out).
		Post("/tokenize")
	if err != nil {
		return classifier.Encoding{}, fmt.Errorf("tokenize request: %w", err)
	}
	if resp.IsError() {
		return classifier.Encoding{}, fmt.Errorf("tokenize: status %d", resp.StatusCode())
	}
	if len(out.InputIDs) == 0 {
		return classifier.Encoding{}, fmt.Errorf("tokenize: empty encoding")
	}
	mask := out.AttentionMask
	if len(mask) == 0 {
		mask = make([]int64, len(out.InputIDs))
		for i := range mask {
			mask[i] = 1
		}
	}
	if len(mask) != len(out.InputIDs) {
		return classifier.Encoding{}, fmt.Errorf("tokenize: %d ids but %d mask entries", len(out.InputIDs), len(mask))
	}
	ids := out.InputIDs
	if n := len(ids); n > t.maxTokens {
		ids = append(ids[:t.maxTokens-1:t.maxTokens-1], ids[n-1])
		mask = append(mask[:t.maxTokens-1:t.maxTokens-1], mask[n-1])
	}
	return classifier.Encoding{InputIDs: ids, AttentionMask: mask}, nil
}
