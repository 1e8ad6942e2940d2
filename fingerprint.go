package claudette

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/RobLe3/claudette-sub003/types"
)

// computeFingerprint implements spec.md §3's prescriptive normalization
// (§9 OQ3): a 256-bit hash of the normalized prompt, the sorted file
// hashes, and the fixed-order options subset {backend?, model, maxTokens,
// temperature}. sha256 is the standard-library choice for a spec-mandated
// 256-bit digest; no third-party hash in the reference corpus offers a
// better fit for this exact width.
func computeFingerprint(prompt string, files []types.FileRef, opts types.RequestOptions) string {
	h := sha256.New()
	h.Write([]byte(normalizePrompt(prompt)))
	h.Write([]byte{0})

	hashes := make([]string, len(files))
	for i, f := range files {
		hashes[i] = f.Hash
	}
	sort.Strings(hashes)
	h.Write([]byte(strings.Join(hashes, ",")))
	h.Write([]byte{0})

	temperature := 0.0
	if opts.HasTemperature {
		temperature = opts.Temperature
	}
	fmt.Fprintf(h, "backend=%s|model=%s|maxTokens=%d|temperature=%.6f",
		opts.Backend, opts.Model, opts.MaxTokens, temperature)

	return hex.EncodeToString(h.Sum(nil))
}

// normalizePrompt trims leading/trailing whitespace and collapses internal
// whitespace runs to a single space, the "whitespace-normalized" rule
// spec.md §3 requires for fingerprint stability.
func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}
