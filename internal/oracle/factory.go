package oracle

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/config"
	"github.com/onetrueaddress/internal/match"
)

// New builds the oracle selected by cfg.Provider. The "none" provider
// returns a nil oracle, which the selector treats as disabled.
func New(cfg config.OracleConfig, logger *zap.Logger) (match.Oracle, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, nil

	case config.ProviderHeuristic:
		return NewHeuristic(), nil

	case config.ProviderAnthropic:
		c := NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
		return NewLLMOracle(cfg.Provider, c, cfg.Timeout.Duration, logger), nil

	case config.ProviderOpenAI:
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
		return NewLLMOracle(cfg.Provider, c, cfg.Timeout.Duration, logger), nil

	default:
		return nil, eris.Errorf("oracle: unsupported provider %q", cfg.Provider)
	}
}
