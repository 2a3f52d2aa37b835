package meshcore

import (
	"sort"

	"github.com/hupe1980/meshcore/config"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/model/anthropic"
	"github.com/hupe1980/meshcore/model/openai"
	"github.com/hupe1980/meshcore/router"
)

// NewFromConfig builds a Runtime from a configuration document. Providers
// without a resolvable API key are skipped; model calls routed to them fail
// with core.ErrMissingCredentials. Unknown provider names are treated as
// OpenAI compatible endpoints and require a baseURL.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Runtime, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	r := router.New(func(o *router.Options) {
		o.Retry = cfg.RetryPolicy()
		o.Logger = logger.WithComponent("router")
	})

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		key := cfg.APIKey(name)
		if key == "" {
			logger.Debug("runtime.provider.skipped", "provider", name, "reason", "no api key")
			continue
		}
		client := providerClient(name, key, pc.BaseURL)
		if client == nil {
			logger.Warn("runtime.provider.skipped", "provider", name, "reason", "unknown provider without baseURL")
			continue
		}
		r.Register(name, client, pc.Limit)
		logger.Info("runtime.provider.registered", "provider", name)
	}

	all := append([]func(o *Options){func(o *Options) {
		o.Router = r
		o.Catalog = cfg.Catalog()
		o.Logger = logger.WithComponent("runtime")
		o.DefaultTimeout = cfg.Timeout
		o.MaxAgents = cfg.Session.MaxAgents
		o.MaxModelCalls = cfg.Session.MaxModelCalls
	}}, optFns...)

	return New(all...), nil
}

func providerClient(name, key, baseURL string) model.Client {
	switch name {
	case anthropic.ProviderID:
		return anthropic.NewClient(func(o *anthropic.Options) {
			o.APIKey = key
			o.BaseURL = baseURL
		})
	case openai.ProviderID:
		return openai.NewClient(func(o *openai.Options) {
			o.APIKey = key
			o.BaseURL = baseURL
		})
	}
	if baseURL == "" {
		return nil
	}
	return openai.NewClient(func(o *openai.Options) {
		o.APIKey = key
		o.BaseURL = baseURL
	})
}
