package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/roundtable"
	"github.com/hupe1980/roundtable/completion"
	anthropicbackend "github.com/hupe1980/roundtable/completion/anthropic"
	openaibackend "github.com/hupe1980/roundtable/completion/openai"
	"github.com/hupe1980/roundtable/config"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/notify"
	"github.com/hupe1980/roundtable/orchestrator"
	"github.com/hupe1980/roundtable/profile"
	"github.com/hupe1980/roundtable/session"
)

type app struct {
	cfg      *config.Config
	logger   *logging.SessionLogger
	profiles *profile.Registry
	rt       *roundtable.Roundtable
	closers  []func() error
}

type wireOptions struct {
	// forceMock replaces the configured completion provider with the mock.
	forceMock bool
	// profilesPath overrides cfg.Profiles.Path when set.
	profilesPath string
	// notifier is added to the log notifier.
	notifier core.Notifier
}

func wireApp(cfg *config.Config, logOut io.Writer, wo wireOptions) (*app, error) {
	lc := cfg.LoggerConfig()
	lc.Output = logOut
	lc.Component = "roundtable"
	logger := logging.NewLogger(lc)

	a := &app{cfg: cfg, logger: logger}

	store, err := a.newStore()
	if err != nil {
		return nil, err
	}

	profilesPath := cfg.Profiles.Path
	if wo.profilesPath != "" {
		profilesPath = wo.profilesPath
	}
	if profilesPath != "" {
		a.profiles, err = profile.LoadFile(profilesPath)
	} else {
		a.profiles, err = profile.NewRegistry()
	}
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("wire profiles: %w", err)
	}

	provider := cfg.Completion.Provider
	if wo.forceMock {
		provider = "mock"
	}
	backend, err := newBackend(provider, cfg.Completion)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	notifier := notify.Multi{notify.NewLog(logger.WithComponent("notify"))}
	if wo.notifier != nil {
		notifier = append(notifier, wo.notifier)
	}

	oc := cfg.Orchestrator
	a.rt = roundtable.New(func(o *roundtable.Options) {
		o.SessionStore = store
		o.Backend = backend
		o.Profiles = a.profiles
		o.Notifier = notifier
		o.Logger = logger
		o.GatewayOptions = append(o.GatewayOptions, func(o *completion.GatewayOptions) {
			o.RunTimeout = cfg.Completion.RunTimeout
		})
		o.Orchestrator = append(o.Orchestrator, func(o *orchestrator.Options) {
			o.TurnTimeout = oc.TurnTimeout
			o.UserWaitTimeout = oc.UserWaitTimeout
			o.SummaryTimeout = oc.SummaryTimeout
			o.ResolutionTimeout = oc.ResolutionTimeout
			o.InterTurnDelay = oc.InterTurnDelay
			o.MaxConsecutiveSkips = oc.MaxConsecutiveSkips
			o.HistoryWindow = oc.HistoryWindow
			o.NotifyChannel = cfg.Notify.Channel
		})
	})
	a.closers = append([]func() error{a.rt.Close}, a.closers...)

	logger.Info("Roundtable wired",
		"store", cfg.Store.Driver,
		"provider", provider,
		"backend", backend.Name(),
		"profiles", len(a.profiles.List()),
	)
	return a, nil
}

func (a *app) newStore() (core.SessionStore, error) {
	switch a.cfg.Store.Driver {
	case "sqlite":
		store, err := session.NewSQLiteStore(a.cfg.Store.Path, func(o *session.SQLiteOptions) {
			o.Logger = a.logger.WithComponent("store")
		})
		if err != nil {
			return nil, fmt.Errorf("wire sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return session.NewInMemoryStore(), nil
	}
}

func newBackend(provider string, cc config.CompletionConfig) (completion.Backend, error) {
	switch provider {
	case "mock":
		return completion.NewMockBackend(func(o *completion.MockOptions) {
			o.Respond = roundtable.DemoReply
		}), nil
	case "openai":
		return openaibackend.NewBackend(func(o *openaibackend.Options) {
			if cc.Model != "" {
				o.Model = cc.Model
			}
			o.Temperature = cc.Temperature
			o.MaxCompletionTokens = cc.MaxTokens
			o.APIKey = cc.APIKey
			o.BaseURL = cc.BaseURL
		}), nil
	case "anthropic":
		return anthropicbackend.NewBackend(func(o *anthropicbackend.Options) {
			if cc.Model != "" {
				o.Model = anthropic.Model(cc.Model)
			}
			o.Temperature = cc.Temperature
			o.MaxTokens = cc.MaxTokens
			o.APIKey = cc.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", provider)
	}
}

// Close releases the roundtable first, then the store.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
