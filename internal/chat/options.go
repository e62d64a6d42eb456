package chat

import (
	"github.com/lhdbsbz/berrychat/internal/config"
	"github.com/lhdbsbz/berrychat/internal/identity"
	"github.com/lhdbsbz/berrychat/internal/metrics"
	"github.com/lhdbsbz/berrychat/internal/prompts"
	"github.com/lhdbsbz/berrychat/internal/transport"
	"github.com/lhdbsbz/berrychat/internal/wire"
)

// OptionsFromConfig wires a controller to the backend described by cfg.
// The token is read from the live config on every exchange.
func OptionsFromConfig(cfg *config.Config, m *metrics.Metrics) Options {
	dialer := &transport.WSDialer{
		URL:              cfg.Backend.URL,
		TokenParam:       cfg.Backend.TokenParam,
		HandshakeTimeout: cfg.Backend.HandshakeTimeout,
	}
	limits := wire.Limits{
		MaxPendingFrames: cfg.Exchange.MaxPendingFrames,
		MaxBufferBytes:   cfg.Exchange.MaxBufferBytes,
	}
	return Options{
		Session: transport.NewSession(dialer, limits),
		Tokens:  identity.ConfigSource{},
		Prompts: prompts.Get(cfg.Locale),
		Action:  cfg.Backend.Action,
		Timeout: cfg.Exchange.Timeout,
		Metrics: m,
	}
}
