//go:build !bedrock

package llm

import (
	"fmt"
	"log/slog"

	"agency-ai/internal/domain"
	"agency-ai/internal/infra/config"
)

func newBedrockFromConfig(_ config.ProviderConfig, _ *slog.Logger) (domain.InferenceProvider, error) {
	return nil, fmt.Errorf("bedrock provider requires build with -tags bedrock")
}
