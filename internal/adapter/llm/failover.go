package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"agency-ai/internal/domain"
)

var _ domain.InferenceProvider = (*FailoverProvider)(nil)

// FailoverProvider wraps a primary inference provider with fallback
// providers. If the primary fails, it tries each fallback in order.
type FailoverProvider struct {
	primary   domain.InferenceProvider
	fallbacks []domain.InferenceProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.InferenceProvider, fallbacks []domain.InferenceProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Generate tries the primary provider first, then each fallback on failure.
// Auth and input errors are returned immediately: retrying them on another
// provider cannot succeed and hides the real problem.
func (f *FailoverProvider) Generate(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceResponse, error) {
	resp, err := f.primary.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !failoverEligible(err) {
		return nil, err
	}
	f.logger.Warn("primary provider failed, trying fallbacks",
		"primary", f.primary.Name(), "error", err)

	allErrors := []string{fmt.Sprintf("%s: %v", f.primary.Name(), err)}

	for _, fb := range f.fallbacks {
		if ctx.Err() != nil {
			allErrors = append(allErrors, fmt.Sprintf("context: %v", ctx.Err()))
			break
		}
		resp, err = fb.Generate(ctx, req)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		if !failoverEligible(err) {
			return nil, err
		}
		f.logger.Warn("fallback provider failed", "provider", fb.Name(), "error", err)
		allErrors = append(allErrors, fmt.Sprintf("%s: %v", fb.Name(), err))
	}

	return nil, fmt.Errorf("all providers failed: [%s]", strings.Join(allErrors, "; "))
}

// failoverEligible reports whether the error is worth retrying on a
// different provider. Bad credentials and malformed requests fail the
// same way everywhere.
func failoverEligible(err error) bool {
	if errors.Is(err, domain.ErrAuthInvalid) || errors.Is(err, domain.ErrInvalidInput) {
		return false
	}
	return true
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}
