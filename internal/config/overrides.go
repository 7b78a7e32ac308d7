package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WMREMOVER_RENDER_DPI.
const EnvPrefix = "WMREMOVER"

// UnboundAnnotation marks a flag that shares a name with a configuration flag
// but means something else on its command. ApplyFlags ignores it.
const UnboundAnnotation = "wmremover_unbound"

// binding ties a configuration key to the field it sets and, optionally, to the
// command-line flag that may override it.
type binding struct {
	key  string
	flag string
	set  func(v *viper.Viper, key string) error
}

func stringField(target *string) func(*viper.Viper, string) error {
	return func(v *viper.Viper, key string) error {
		*target = v.GetString(key)

		return nil
	}
}

func intField(target *int) func(*viper.Viper, string) error {
	return func(v *viper.Viper, key string) error {
		*target = v.GetInt(key)

		return nil
	}
}

func boolField(target *bool) func(*viper.Viper, string) error {
	return func(v *viper.Viper, key string) error {
		*target = v.GetBool(key)

		return nil
	}
}

func floatField(target *float64) func(*viper.Viper, string) error {
	return func(v *viper.Viper, key string) error {
		*target = v.GetFloat64(key)

		return nil
	}
}

func durationField(target *Duration) func(*viper.Viper, string) error {
	return func(v *viper.Viper, key string) error {
		parsed, parseErr := time.ParseDuration(v.GetString(key))
		if parseErr != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, parseErr)
		}

		target.Duration = parsed

		return nil
	}
}

func (cfg *Config) bindings() []binding {
	return []binding{
		{"paths.input_dir", "input", stringField(&cfg.Paths.InputDir)},
		{"paths.output_dir", "output", stringField(&cfg.Paths.OutputDir)},
		{"paths.work_dir", "work-dir", stringField(&cfg.Paths.WorkDir)},
		{"paths.logs_dir", "logs-dir", stringField(&cfg.Paths.LogsDir)},
		{"paths.history_db", "history-db", stringField(&cfg.Paths.HistoryDB)},
		{"render.backend", "backend", stringField(&cfg.Render.Backend)},
		{"render.dpi", "dpi", intField(&cfg.Render.DPI)},
		{"render.workers", "workers", intField(&cfg.Render.Workers)},
		{"blank_detection.enabled", "skip-blank", boolField(&cfg.BlankDetection.Enabled)},
		{"blank_detection.fuzz_percent", "", intField(&cfg.BlankDetection.FuzzPercent)},
		{"blank_detection.non_white_threshold", "", floatField(&cfg.BlankDetection.NonWhiteThreshold)},
		{"browser.headless", "headless", boolField(&cfg.Browser.Headless)},
		{"browser.exec_path", "chrome", stringField(&cfg.Browser.ExecPath)},
		{"browser.user_agent", "", stringField(&cfg.Browser.UserAgent)},
		{"service.url", "service-url", stringField(&cfg.Service.URL)},
		{"service.processing_timeout", "", durationField(&cfg.Service.ProcessingTimeout)},
		{"service.download_timeout", "", durationField(&cfg.Service.DownloadTimeout)},
		{"service.page_delay", "page-delay", durationField(&cfg.Service.PageDelay)},
		{"service.document_delay", "document-delay", durationField(&cfg.Service.DocumentDelay)},
		{"assemble.quality", "quality", intField(&cfg.Assemble.Quality)},
		{"assemble.output_prefix", "", stringField(&cfg.Assemble.OutputPrefix)},
		{"assemble.keep_failed_pages", "keep-failed", boolField(&cfg.Assemble.KeepFailedPages)},
		{"history.enabled", "history", boolField(&cfg.History.Enabled)},
		{"history.skip_processed", "skip-processed", boolField(&cfg.History.SkipProcessed)},
		{"nats.url", "nats-url", stringField(&cfg.NATS.URL)},
	}
}

// ApplyEnv overrides configuration values from WMREMOVER_* environment variables.
func (cfg *Config) ApplyEnv() error {
	envViper := viper.New()
	envViper.SetEnvPrefix(EnvPrefix)
	envViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, bind := range cfg.bindings() {
		if bindErr := envViper.BindEnv(bind.key); bindErr != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", bind.key, bindErr)
		}

		if !envViper.IsSet(bind.key) {
			continue
		}

		if setErr := bind.set(envViper, bind.key); setErr != nil {
			return setErr
		}
	}

	return nil
}

// ApplyFlags overrides configuration values with the flags the user actually
// set. Flags that are not registered on the set, or carry UnboundAnnotation,
// are ignored.
func (cfg *Config) ApplyFlags(flags *pflag.FlagSet) error {
	flagViper := viper.New()

	for _, bind := range cfg.bindings() {
		if bind.flag == "" {
			continue
		}

		flag := flags.Lookup(bind.flag)
		if flag == nil || !flag.Changed {
			continue
		}

		if _, unbound := flag.Annotations[UnboundAnnotation]; unbound {
			continue
		}

		if bindErr := flagViper.BindPFlag(bind.key, flag); bindErr != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", bind.flag, bindErr)
		}

		if setErr := bind.set(flagViper, bind.key); setErr != nil {
			return setErr
		}
	}

	return nil
}

// Resolve loads the file at path, then applies environment and flag overrides
// and validates the result.
func Resolve(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg, loadErr := Load(path)
	if loadErr != nil {
		return nil, loadErr
	}

	if envErr := cfg.ApplyEnv(); envErr != nil {
		return nil, envErr
	}

	if flags != nil {
		if flagErr := cfg.ApplyFlags(flags); flagErr != nil {
			return nil, flagErr
		}
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}
