package bootstrap

import (
	"strings"
	"time"

	appconfig "github.com/wolfman30/xbook/internal/config"
	"github.com/wolfman30/xbook/internal/notify"
	"github.com/wolfman30/xbook/pkg/logging"
)

// Email providers.
const (
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
	ProviderNone     = "none"
)

// EmailProvider resolves EMAIL_PROVIDER. "auto" picks SendGrid when an API
// key is set, then SES when a sender address is set, else none. Without a
// recipient there is nothing to send.
func EmailProvider(cfg *appconfig.Config) string {
	if cfg == nil || strings.TrimSpace(cfg.NotifyEmailTo) == "" {
		return ProviderNone
	}
	switch cfg.EmailProvider {
	case ProviderSendGrid, ProviderSES, ProviderNone:
		return cfg.EmailProvider
	}
	if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		return ProviderSendGrid
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" {
		return ProviderSES
	}
	return ProviderNone
}

// BuildEmailSender returns the sender for the resolved provider. ses is only
// used for the SES provider and may be nil otherwise. When the chosen
// provider is not usable the stub sender is returned with a reason.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (notify.EmailSender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	provider := EmailProvider(cfg)
	switch provider {
	case ProviderSendGrid:
		from := notify.Address{Email: cfg.SendGridFromEmail, Name: cfg.SendGridFromName}
		if sender := notify.NewSendGridSender(cfg.SendGridAPIKey, from, logger); sender != nil {
			return sender, provider, ""
		}
		return notify.NewStubEmailSender(logger), ProviderNone, "sendgrid api key missing"
	case ProviderSES:
		if sender := notify.NewSESSender(ses, notify.Address{Email: cfg.SESFromEmail}, logger); sender != nil {
			return sender, provider, ""
		}
		return notify.NewStubEmailSender(logger), ProviderNone, "ses client unavailable"
	default:
		return notify.NewStubEmailSender(logger), ProviderNone, "email disabled"
	}
}

// BuildNotifier wraps sender in the booking notification service.
func BuildNotifier(cfg *appconfig.Config, sender notify.EmailSender, loc *time.Location, logger *logging.Logger) *notify.Service {
	recipient := ""
	if cfg != nil {
		recipient = cfg.NotifyEmailTo
	}
	return notify.NewService(sender, recipient, loc, logger)
}
