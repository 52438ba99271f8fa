// Package reasoning talks to the external text-in/text-out reasoning
// service. Backends are interchangeable behind Reasoner; nothing here knows
// what the prompts mean.
package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/actionsum/nudge/internal/config"
)

// ErrUnavailable is returned when no reasoning backend is configured.
var ErrUnavailable = errors.New("reasoning service unavailable")

// Reasoner sends one prompt and returns the raw reply text.
type Reasoner interface {
	Reason(ctx context.Context, prompt string) (string, error)
}

// New builds the backend selected by cfg.Provider.
func New(cfg config.ReasoningConfig) (Reasoner, error) {
	switch cfg.Provider {
	case config.ProviderCLI:
		return NewCLI(cfg.Command, cfg.Args, cfg.Timeout), nil
	case config.ProviderHTTP:
		return NewHTTP(cfg.BaseURL, cfg.Model, cfg.APIKeyEnv, cfg.Timeout), nil
	case config.ProviderNone:
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Provider)
	}
}

// Unavailable always fails; every detection cycle then ends as a miss.
type Unavailable struct{}

func (Unavailable) Reason(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

// Func adapts a plain function to Reasoner.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Reason(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
