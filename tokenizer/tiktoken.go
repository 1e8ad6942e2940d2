package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer adapts tiktoken-go for OpenAI-family models.
type TiktokenTokenizer struct {
	model    string
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// modelEncodings maps known model name prefixes to their tiktoken encoding.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4-turbo", "cl100k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5-turbo", "cl100k_base"},
	{"text-embedding-3", "cl100k_base"},
}

// NewTiktokenTokenizer returns an exact tokenizer for model, or an error if
// model is not a recognized OpenAI-family model (the caller should then use
// EstimatorTokenizer instead).
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			return &TiktokenTokenizer{model: model, encoding: m.encoding}, nil
		}
	}
	return nil, fmt.Errorf("no tiktoken encoding known for model %q", model)
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
