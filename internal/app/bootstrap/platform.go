// Package bootstrap builds the run's collaborators from configuration.
package bootstrap

import (
	"fmt"

	"github.com/wolfman30/xbook/internal/auth"
	"github.com/wolfman30/xbook/internal/category"
	appconfig "github.com/wolfman30/xbook/internal/config"
	"github.com/wolfman30/xbook/internal/markup"
	"github.com/wolfman30/xbook/internal/platform"
	"github.com/wolfman30/xbook/pkg/logging"
)

// BuildPlatformClient returns the booking API client. All of its traffic,
// including every login session derived from it, shares one rate limiter.
func BuildPlatformClient(cfg *appconfig.Config, logger *logging.Logger) (*platform.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := platform.NewHTTPClient(cfg.HTTPTimeout, cfg.RequestRate, cfg.RequestBurst)
	return platform.NewClient(cfg.PlatformAPIURL,
		platform.WithHTTPClient(httpClient),
		platform.WithLogger(logger),
	), nil
}

// BuildAuthenticator returns the authenticator for the configured method.
func BuildAuthenticator(cfg *appconfig.Config, api *platform.Client, logger *logging.Logger) (auth.Authenticator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	method, err := cfg.Method()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return auth.New(method, api,
		auth.WithLogger(logger),
		auth.WithExtractor(markup.New(cfg.HTMLExtractor)),
	)
}

// BuildRegistry returns the category registry with the environment's tag
// overrides applied.
func BuildRegistry(cfg *appconfig.Config) (*category.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	overrides, err := cfg.TagOverrides()
	if err != nil {
		return nil, err
	}
	return category.NewRegistry(overrides)
}

// BuildWindowPolicy returns the booking window policy, starting from the
// built-in data and applying configured durations.
func BuildWindowPolicy(cfg *appconfig.Config) category.WindowPolicy {
	policy := category.DefaultWindowPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.GymBookingWindow > 0 {
		policy.Fixed[category.Gym.Key] = cfg.GymBookingWindow
	}
	if cfg.HallBookingLeadDays >= 0 {
		policy.HallLeadDays = cfg.HallBookingLeadDays
	}
	if cfg.DefaultBookingWindow > 0 {
		policy.Default = cfg.DefaultBookingWindow
	}
	return policy
}
