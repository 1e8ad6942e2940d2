package tokenizer

import "unicode/utf8"

// EstimatorTokenizer is a character-count-based token estimator, used as
// the fallback (§4.2) for backends/models with no exact tokenizer: CJK
// characters average ~1.5 chars/token, ASCII ~4 chars/token.
type EstimatorTokenizer struct {
	model string
}

// NewEstimatorTokenizer creates the fallback estimator for model.
func NewEstimatorTokenizer(model string) *EstimatorTokenizer {
	return &EstimatorTokenizer{model: model}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}

	cjkTokens := float64(cjk) / 1.5
	asciiTokens := float64(total-cjk) / 4.0
	estimated := int(cjkTokens + asciiTokens)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
