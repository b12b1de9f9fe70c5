package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DumbModel is a deterministic, zero-dependency Model: it either echoes
// its input back (optionally truncated to MaxTokens) or, with Echo false,
// returns a canned acknowledgement. It exists to exercise pipelines end to
// end without a real provider wired in.
type DumbModel struct {
	MaxTokens int
	Echo      bool

	encoding *tiktoken.Tiktoken
}

// NewDumbModel builds a DumbModel. maxTokens bounds both the input the
// model will "read" for GetNumTokens-based truncation and the length of
// anything it echoes back.
func NewDumbModel(maxTokens int, echo bool) (*DumbModel, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("llm: loading tiktoken encoding: %w", err)
	}
	return &DumbModel{MaxTokens: maxTokens, Echo: echo, encoding: encoding}, nil
}

// Invoke returns text unchanged (truncated to MaxTokens) when Echo is
// true, or a fixed acknowledgement referencing the input's token count
// otherwise.
func (m *DumbModel) Invoke(ctx context.Context, text string) (string, error) {
	if !m.Echo {
		return fmt.Sprintf("acknowledged %d tokens", m.GetNumTokens(text)), nil
	}

	tokens := m.encoding.Encode(text, nil, nil)
	if len(tokens) <= m.MaxTokens {
		return text, nil
	}
	return m.encoding.Decode(tokens[:m.MaxTokens]), nil
}

// Stream breaks Invoke's result into one-word chunks delivered on a
// channel, closing it once the response has been fully sent or ctx is
// cancelled.
func (m *DumbModel) Stream(ctx context.Context, text string) (<-chan string, error) {
	response, err := m.Invoke(ctx, text)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	words := strings.Fields(response)
	go func() {
		defer close(out)
		for _, w := range words {
			select {
			case <-ctx.Done():
				return
			case out <- w + " ":
			}
		}
	}()
	return out, nil
}

// InvokeWithImages ignores the images and delegates to Invoke, noting
// the image count in the echoed/acknowledged text so tests can assert
// images were actually passed through.
func (m *DumbModel) InvokeWithImages(ctx context.Context, prompt string, images [][]byte) (string, error) {
	response, err := m.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s [%d images]", response, len(images)), nil
}

// GetNumTokens returns the cl100k_base token count for text.
func (m *DumbModel) GetNumTokens(text string) int {
	return len(m.encoding.Encode(text, nil, nil))
}
