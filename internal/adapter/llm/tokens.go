package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"agency-ai/internal/domain"
)

// fallbackEncoding covers models tiktoken does not know by name.
const fallbackEncoding = "cl100k_base"

// heuristicBytesPerToken approximates prose at about four bytes per token,
// used when no encoding can be loaded at all.
const heuristicBytesPerToken = 4

// Estimator approximates token counts for providers that do not report
// usage, so the usage ledger stays meaningful. Encodings are cached per
// model; loading happens once.
type Estimator struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewEstimator creates a token estimator.
func NewEstimator() *Estimator {
	return &Estimator{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate implements domain.TokenEstimator.
func (e *Estimator) Estimate(model, text string) int64 {
	if text == "" {
		return 0
	}
	if enc := e.encodingFor(model); enc != nil {
		return int64(len(enc.Encode(text, nil, nil)))
	}
	return int64((len(text) + heuristicBytesPerToken - 1) / heuristicBytesPerToken)
}

// encodingFor returns the cached encoding for model, loading it on first
// use. Failed lookups are cached as nil so the heuristic path does not
// retry loading on every call.
func (e *Estimator) encodingFor(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			enc = nil
		}
	}
	e.encodings[model] = enc
	return enc
}

var _ domain.TokenEstimator = (*Estimator)(nil)
