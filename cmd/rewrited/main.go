// rewrite/cmd/rewrited/main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"rgehrsitz/rewrite/pkg/compiler"
	"rgehrsitz/rewrite/pkg/httpcore"
	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/metrics"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/runtime"
	"rgehrsitz/rewrite/pkg/store"
	"rgehrsitz/rewrite/pkg/validator"
)

// SharedVar exposes a Redis key to rulesets as shared.<key>.
type SharedVar struct {
	Key      string `mapstructure:"key"`
	Type     string `mapstructure:"type"`
	Writable bool   `mapstructure:"writable"`
}

// Config represents the application configuration
type Config struct {
	RulesFile         string
	BytecodeFile      string
	CompileOutput     string
	WatchRules        bool
	LogLevel          string
	LogDestination    string
	ServerAddress     string
	Headers           []string
	Site              map[string]interface{}
	ScriptTimeout     time.Duration
	RedisEnabled      bool
	RedisAddress      string
	RedisPassword     string
	RedisDB           int
	RedisChannels     []string
	RedisQueueSize    int
	SharedVars        []SharedVar
	MetricsEnabled    bool
	MetricsPath       string
	DashboardEnabled  bool
	DashboardPort     int
	DashboardInterval int
}

// Dependencies represents the wired components of the daemon
type Dependencies struct {
	Engine    *runtime.Engine
	Env       compiler.Environment
	Handler   *httpcore.Handler
	Metrics   *metrics.RewriteMetrics
	Store     store.Store
	Cache     *store.Cache
	Dashboard *runtime.Dashboard
}

// StoreFactory is an interface for creating a store
type StoreFactory interface {
	NewStore(ctx context.Context, addr, password string, db int) (store.Store, error)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, os.Args, &RealStoreFactory{}); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func run(ctx context.Context, args []string, storeFactory StoreFactory) error {
	config, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := logging.ConfigureLogger(config.LogLevel, config.LogDestination); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	deps, err := setupDependencies(ctx, config, storeFactory)
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	if deps.Store != nil {
		defer deps.Store.Close()
	}

	if config.CompileOutput != "" {
		return compiler.WriteBytecodeToFile(config.CompileOutput, deps.Handler.Bundle())
	}

	return runMainLoop(ctx, deps, config)
}

func parseConfig(args []string) (*Config, error) {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	configFile := flags.String("config", "", "Path to configuration file")
	compileOut := flags.String("compile", "", "Compile the rules file to this bytecode file and exit")
	if err := flags.Parse(args[1:]); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("rules_file", "rules.json")
	v.SetDefault("bytecode_file", "")
	v.SetDefault("rules.watch", true)
	v.SetDefault("headers", httpcore.DefaultHeaders)
	v.SetDefault("scripts.timeout_ms", 50)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.channels", []string{"shared"})
	v.SetDefault("redis.queue_size", store.DefaultQueueSize)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 9090)
	v.SetDefault("dashboard.update_interval", 5)

	if *configFile == "" {
		v.SetConfigName("rewrite_config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rewrite")
		v.AddConfigPath("/etc/rewrite")
	} else {
		v.SetConfigFile(*configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || *configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No configuration file found, using defaults")
	}

	var shared []SharedVar
	if err := v.UnmarshalKey("redis.variables", &shared); err != nil {
		return nil, fmt.Errorf("invalid redis.variables: %w", err)
	}

	return &Config{
		RulesFile:         v.GetString("rules_file"),
		BytecodeFile:      v.GetString("bytecode_file"),
		CompileOutput:     *compileOut,
		WatchRules:        v.GetBool("rules.watch"),
		LogLevel:          v.GetString("logging.level"),
		LogDestination:    v.GetString("logging.output"),
		ServerAddress:     v.GetString("server.address"),
		Headers:           v.GetStringSlice("headers"),
		Site:              v.GetStringMap("site"),
		ScriptTimeout:     time.Duration(v.GetInt("scripts.timeout_ms")) * time.Millisecond,
		RedisEnabled:      v.GetBool("redis.enabled"),
		RedisAddress:      v.GetString("redis.address"),
		RedisPassword:     v.GetString("redis.password"),
		RedisDB:           v.GetInt("redis.database"),
		RedisChannels:     v.GetStringSlice("redis.channels"),
		RedisQueueSize:    v.GetInt("redis.queue_size"),
		SharedVars:        shared,
		MetricsEnabled:    v.GetBool("metrics.enabled"),
		MetricsPath:       v.GetString("metrics.path"),
		DashboardEnabled:  v.GetBool("dashboard.enabled"),
		DashboardPort:     v.GetInt("dashboard.port"),
		DashboardInterval: v.GetInt("dashboard.update_interval"),
	}, nil
}

func setupDependencies(ctx context.Context, config *Config, storeFactory StoreFactory) (*Dependencies, error) {
	deps := &Dependencies{}
	vars := rewrite.NewVariables()
	callbacks := rewrite.NewCallbacks()

	builtins, err := httpcore.RegisterBuiltins(vars, callbacks, config.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to register builtins: %w", err)
	}

	if config.RedisEnabled {
		st, err := storeFactory.NewStore(ctx, config.RedisAddress, config.RedisPassword, config.RedisDB)
		if err != nil {
			return nil, err
		}
		deps.Store = st
		deps.Cache = store.NewCache(st, config.RedisQueueSize)
		for _, sv := range config.SharedVars {
			typ, err := rewrite.ParseType(sv.Type)
			if err != nil {
				return nil, fmt.Errorf("shared variable %s: %w", sv.Key, err)
			}
			if _, err := deps.Cache.Bind(vars, sv.Key, typ, sv.Writable); err != nil {
				return nil, fmt.Errorf("shared variable %s: %w", sv.Key, err)
			}
		}
	}

	deps.Metrics = metrics.NewRewriteMetrics(metrics.DefaultConfig(), prometheus.NewRegistry())
	deps.Engine = runtime.NewEngine(runtime.WithObserver(deps.Metrics))
	deps.Env = compiler.Environment{
		Variables:     vars,
		Callbacks:     callbacks,
		ScriptTimeout: config.ScriptTimeout,
	}
	deps.Handler = httpcore.NewHandler(deps.Engine, deps.Env, builtins,
		httpcore.WithBaseSettings(config.Site),
		httpcore.WithRecorder(deps.Metrics))

	bundle, err := loadBundle(config, deps.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	deps.Handler.SetBundle(bundle)

	if deps.Cache != nil {
		if keys := store.KeysOf(bundle.Deps.Variables()); len(keys) > 0 {
			if err := deps.Cache.Preload(ctx, keys...); err != nil {
				return nil, err
			}
		}
	}

	if config.DashboardEnabled {
		deps.Dashboard = runtime.NewDashboard(deps.stats(), config.DashboardPort,
			time.Duration(config.DashboardInterval)*time.Second)
	}
	return deps, nil
}

// loadBundle prefers a compiled bytecode file over the rules file. Validator
// warnings are logged but do not fail the load.
func loadBundle(config *Config, env compiler.Environment) (*compiler.Bundle, error) {
	var (
		bundle *compiler.Bundle
		err    error
	)
	if config.BytecodeFile != "" {
		bundle, err = compiler.LoadBytecodeFile(config.BytecodeFile, env)
	} else {
		var file *compiler.RuleFile
		if file, err = compiler.ParseFile(config.RulesFile); err == nil {
			bundle, err = compiler.Compile(file, env)
		}
	}
	if err != nil {
		return nil, err
	}

	for _, w := range validator.Validate(bundle) {
		log.Warn().Str("ruleset", w.Ruleset).Int("index", w.Index).Msg(w.Message)
	}
	return bundle, nil
}

func runMainLoop(ctx context.Context, deps *Dependencies, config *Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/", deps.Handler)
	if config.MetricsEnabled {
		mux.Handle(config.MetricsPath, deps.Metrics.Handler())
	}
	server := &http.Server{
		Addr:              config.ServerAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if deps.Cache != nil {
		go func() {
			if err := deps.Cache.Watch(ctx, config.RedisChannels...); err != nil {
				logging.LogError(logging.Logger, err)
			}
		}()
		go deps.Cache.RunWriter(ctx)
	}

	if config.WatchRules && config.BytecodeFile == "" {
		go func() {
			if err := watchRules(ctx, config.RulesFile, deps.reload(config)); err != nil {
				log.Error().Err(err).Msg("Rule watcher stopped")
			}
		}()
	}

	if deps.Dashboard != nil {
		go func() {
			if err := deps.Dashboard.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Dashboard stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	log.Info().Str("address", config.ServerAddress).Msg("Rewrite server started")

	var err error
	select {
	case err = <-serverErr:
	case <-sigChan:
		log.Info().Msg("Shutting down rewrite server")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// reload recompiles the rules file and swaps the bundle on success.
func (d *Dependencies) reload(config *Config) func() error {
	return func() error {
		bundle, err := loadBundle(config, d.Env)
		d.Metrics.RecordReload(err)
		if err != nil {
			logging.LogError(logging.Logger, err)
			return err
		}
		if d.Cache != nil {
			if keys := store.KeysOf(bundle.Deps.Variables()); len(keys) > 0 {
				if err := d.Cache.Preload(context.Background(), keys...); err != nil {
					logging.LogError(logging.Logger, err)
				}
			}
		}
		d.Handler.SetBundle(bundle)
		log.Info().Int("rulesets", len(bundle.Rulesets)).Msg("Rules reloaded")
		return nil
	}
}

// stats merges engine counters with the shared-variable cache's.
func (d *Dependencies) stats() runtime.StatsSource {
	return statsFunc(func() map[string]interface{} {
		s := d.Engine.GetStats()
		if d.Cache != nil {
			for k, v := range d.Cache.Stats() {
				s["Cache"+k] = v
			}
		}
		return s
	})
}

type statsFunc func() map[string]interface{}

func (f statsFunc) GetStats() map[string]interface{} { return f() }

// RealStoreFactory implements StoreFactory
type RealStoreFactory struct{}

func (f *RealStoreFactory) NewStore(ctx context.Context, addr, password string, db int) (store.Store, error) {
	return store.NewRedisStore(ctx, addr, password, db)
}
