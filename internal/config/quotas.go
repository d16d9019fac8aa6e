package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Quota is a request budget for one class of endpoint.
type Quota struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// QuotaConfig holds the operational knobs that are tuned without a redeploy:
// abuse-throttle budgets and scheduler cadence.
type QuotaConfig struct {
	Throttle  map[string]Quota `mapstructure:"throttle"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
}

type SchedulerConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	StaleOrderMaxAge  time.Duration `mapstructure:"staleOrderMaxAge"`
	ExportLookbackDay int           `mapstructure:"exportLookbackDays"`
	DisabledJobs      []string      `mapstructure:"disabledJobs"`
}

func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		Throttle: map[string]Quota{
			"auth":   {Limit: 5, Window: 15 * time.Minute},
			"orders": {Limit: 30, Window: 15 * time.Minute},
		},
		Scheduler: SchedulerConfig{
			Interval:          time.Minute,
			StaleOrderMaxAge:  2 * time.Hour,
			ExportLookbackDay: 1,
		},
	}
}

// QuotaConfigHolder serves the current quota config and hot-reloads it when
// the backing file changes. Invalid updates are ignored, never applied.
type QuotaConfigHolder struct {
	current atomic.Value // holds QuotaConfig
}

func NewQuotaConfigHolder() (*QuotaConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("quotas")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/mealgrid/config")
	v.AddConfigPath("/etc/mealgrid")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEALGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultQuotaConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, err
		}
		if err := validateQuotaConfig(cfg); err != nil {
			return nil, err
		}
	}

	holder := &QuotaConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultQuotaConfig()
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[quota-config] reload failed: %v", err)
			return
		}
		if err := validateQuotaConfig(updated); err != nil {
			log.Printf("[quota-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[quota-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *QuotaConfigHolder) Get() QuotaConfig {
	return h.current.Load().(QuotaConfig)
}

// QuotaFor returns the budget for an endpoint class, falling back to the
// built-in defaults for unknown classes.
func (h *QuotaConfigHolder) QuotaFor(class string) Quota {
	if q, ok := h.Get().Throttle[class]; ok && q.Limit > 0 && q.Window > 0 {
		return q
	}
	if q, ok := DefaultQuotaConfig().Throttle[class]; ok {
		return q
	}
	return Quota{Limit: 60, Window: time.Minute}
}

func validateQuotaConfig(cfg QuotaConfig) error {
	for class, q := range cfg.Throttle {
		if q.Limit <= 0 {
			return errors.New("throttle." + class + ".limit must be positive")
		}
		if q.Window <= 0 {
			return errors.New("throttle." + class + ".window must be positive")
		}
	}
	if cfg.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive")
	}
	if cfg.Scheduler.StaleOrderMaxAge <= 0 {
		return errors.New("scheduler.staleOrderMaxAge must be positive")
	}
	return nil
}
