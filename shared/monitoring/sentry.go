package monitoring

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds Sentry configuration options
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	SampleRate       float64
	TracesSampleRate float64
	ServiceName      string
	ServerName       string
}

// InitSentry initializes Sentry with the provided configuration
func InitSentry(config *SentryConfig) error {
	dsn := config.DSN
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}

	// Skip if no DSN provided
	if dsn == "" {
		fmt.Println("Sentry DSN not provided, skipping initialization")
		return nil
	}

	environment := config.Environment
	if environment == "" {
		environment = os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}
	}

	release := config.Release
	if release == "" {
		release = os.Getenv("RELEASE_VERSION")
		if release == "" {
			release = "unknown"
		}
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		if environment == "production" {
			sampleRate = 1.0
		} else {
			sampleRate = 0.25
		}
	}

	tracesSampleRate := config.TracesSampleRate
	if tracesSampleRate == 0 {
		if environment == "production" {
			tracesSampleRate = 0.1
		} else {
			tracesSampleRate = 0.05
		}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		Debug:            config.Debug,
		SampleRate:       sampleRate,
		TracesSampleRate: tracesSampleRate,
		ServerName:       config.ServerName,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if config.ServiceName != "" {
				event.Tags["service"] = config.ServiceName
			}

			FilterSensitiveData(event)

			return event
		},
	})

	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	fmt.Printf("Sentry initialized for %s service (env: %s, release: %s)\n",
		config.ServiceName, environment, release)
	return nil
}

// sensitiveKeys are filtered from outgoing events. Wallet material and
// session tokens must never reach Sentry.
var sensitiveKeys = []string{
	"password", "secret", "token", "key",
	"authorization", "auth",
	"api_key", "apikey",
	"access_token", "refresh_token",
	"private_key", "privatekey",
	"mnemonic", "seed",
}

// FilterSensitiveData removes sensitive information from events
func FilterSensitiveData(event *sentry.Event) {
	if event.Request != nil {
		for key := range event.Request.Headers {
			if containsSensitiveKey(key) {
				event.Request.Headers[key] = "[FILTERED]"
			}
		}
	}

	for contextKey, contextValue := range event.Contexts {
		for key := range contextValue {
			if containsSensitiveKey(key) {
				contextValue[key] = "[FILTERED]"
			}
		}
		event.Contexts[contextKey] = contextValue
	}

	for key := range event.Extra {
		if containsSensitiveKey(key) {
			event.Extra[key] = "[FILTERED]"
		}
	}
}

func containsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// FlushSentry flushes buffered events
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// CaptureError captures an error and sends it to Sentry
func CaptureError(err error, tags map[string]string, extra map[string]interface{}) {
	hub := sentry.CurrentHub()
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}

		for key, value := range extra {
			scope.SetExtra(key, value)
		}

		hub.CaptureException(err)
	})
}

// CaptureMessage captures a message and sends it to Sentry
func CaptureMessage(message string, level sentry.Level, tags map[string]string) {
	hub := sentry.CurrentHub()
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}

		scope.SetLevel(level)
		hub.CaptureMessage(message)
	})
}
