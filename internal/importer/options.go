package importer

import (
	"time"

	"github.com/vrsandeep/catalog-importer/internal/config"
)

// Options are the deployment settings of the pipeline. They are passed in
// explicitly; nothing below the orchestrator reads configuration.
type Options struct {
	Currency           string
	Locales            []string
	DefaultProductType string
	ProgressEvery      int
	ReclaimEvery       int
	MaxMessageLength   int
	RetryDelay         time.Duration
	SubmitDelay        time.Duration
	ScratchDir         string
	RemoteImagePrefix  string
}

func OptionsFromConfig(cfg *config.Config) Options {
	ic := cfg.Import
	return Options{
		Currency:           ic.Currency,
		Locales:            ic.Locales,
		DefaultProductType: ic.DefaultProductType,
		ProgressEvery:      ic.ProgressEvery,
		ReclaimEvery:       ic.ReclaimEvery,
		MaxMessageLength:   ic.MaxMessageLength,
		RetryDelay:         ic.RetryDelay,
		SubmitDelay:        ic.SubmitDelay,
		ScratchDir:         ic.ScratchDir,
		RemoteImagePrefix:  ic.RemoteImagePrefix,
	}
}

func (o Options) withDefaults() Options {
	if o.Currency == "" {
		o.Currency = "eur"
	}
	if len(o.Locales) == 0 {
		o.Locales = []string{"en", "lv"}
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 20
	}
	if o.ReclaimEvery <= 0 {
		o.ReclaimEvery = 25
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = 200
	}
	if o.RemoteImagePrefix == "" {
		o.RemoteImagePrefix = "zipImages"
	}
	return o
}
