// Package ratelimit throttles requests per client identity using counters in the shared kv store.
package ratelimit

import (
	"errors"
	"time"

	"storefront-gateway/internal/config"
)

var ErrRateLimited = errors.New("ratelimit: too many requests")

// Policy is one endpoint class.
type Policy struct {
	Name   string
	Window time.Duration
	Max    int

	// SkipSuccessful counts only responses with status >= 400.
	SkipSuccessful bool

	// OnStoreError is one of config.OnStoreErrorClosed, Open or Local.
	OnStoreError string

	// Message is returned to rejected clients.
	Message string
}

// Policy names double as key namespaces and metric labels.
const (
	PolicyAuth     = "auth"
	PolicyCheckout = "checkout"
	PolicyRecovery = "recovery"
	PolicyAgent    = "agent"
	PolicyGlobal   = "global"
)

// Policies builds the five endpoint classes from validated config.
func Policies(cfg config.RateLimitConfig) map[string]Policy {
	return map[string]Policy{
		PolicyAuth: fromConfig(PolicyAuth, cfg.Auth, true,
			"too many authentication attempts, please try again later"),
		PolicyCheckout: fromConfig(PolicyCheckout, cfg.Checkout, false,
			"checkout request limit reached, please try again later"),
		PolicyRecovery: fromConfig(PolicyRecovery, cfg.Recovery, false,
			"too many password recovery requests, please try again later"),
		PolicyAgent: fromConfig(PolicyAgent, cfg.Agent, false,
			"agent API rate limit reached, please try again later"),
		PolicyGlobal: fromConfig(PolicyGlobal, cfg.Global, false,
			"API rate limit reached, please try again later"),
	}
}

func fromConfig(name string, pc config.PolicyConfig, skipSuccessful bool, msg string) Policy {
	return Policy{
		Name:           name,
		Window:         pc.Window,
		Max:            pc.Max,
		SkipSuccessful: skipSuccessful,
		OnStoreError:   pc.OnStoreError,
		Message:        msg,
	}
}
