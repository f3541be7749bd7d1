package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
)

const (
	defaultServiceName        = "prnotifier"
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultMetricsPath        = "/metrics"
	defaultWebhookPath        = "/webhook"
	defaultReloadSeconds      = 30
	defaultDispatchTimeoutSec = 30
	defaultHistorySize        = 200

	defaultNATSURL           = "nats://127.0.0.1:4222"
	defaultNATSSubject       = "prnotifier.events"
	defaultNATSStream        = "PRNOTIFIER_EVENTS"
	defaultNATSConsumer      = "prnotifier-ingest"
	defaultNATSDeliverGroup  = "prnotifier-workers"
	defaultNATSAckWaitSec    = 30
	defaultNATSMaxDeliver    = -1
	defaultNATSMaxAckPending = 2048
)

var (
	legacyNotificationArrayPattern = regexp.MustCompile(`(?m)^\s*\[\[\s*notification\s*\]\]`)
	legacyButtonArrayPattern       = regexp.MustCompile(`(?m)^\s*\[\[\s*button\s*\]\]`)
	fixedNATSKeysPattern           = regexp.MustCompile(`(?mi)^\s*(?:subject|stream|consumer_name|deliver_group)\s*=`)
)

// Config holds service runtime settings plus notification and button rules.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service       ServiceConfig        `toml:"service"`
	Log           LogConfig            `toml:"log"`
	Ingest        IngestConfig         `toml:"ingest"`
	SCM           SCMConfig            `toml:"scm"`
	Settings      GlobalSettings       `toml:"settings"`
	Notifications []NotificationConfig `toml:"notification"`
	Buttons       []ButtonConfig       `toml:"button"`
}

// rawConfig mirrors the TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: raw rule maps keyed by table name.
type rawConfig struct {
	Service       ServiceConfig                    `toml:"service"`
	Log           LogConfig                        `toml:"log"`
	Ingest        IngestConfig                     `toml:"ingest"`
	SCM           SCMConfig                        `toml:"scm"`
	Settings      GlobalSettings                   `toml:"settings"`
	Notifications map[string]rawNotificationConfig `toml:"notification"`
	Buttons       map[string]rawButtonConfig       `toml:"button"`
}

// rawNotificationConfig stores one `[notification.<name>]` table body.
// Params: notification fields except the key-derived id.
// Returns: intermediate body used for normalization.
type rawNotificationConfig struct {
	Name               string         `toml:"name"`
	URL                string         `toml:"url"`
	Method             string         `toml:"method"`
	User               string         `toml:"user"`
	Password           string         `toml:"password"`
	PostContent        string         `toml:"post_content"`
	Headers            []HeaderConfig `toml:"header"`
	Proxy              *ProxyConfig   `toml:"proxy"`
	Triggers           any            `toml:"triggers"`
	IgnoreStates       any            `toml:"trigger_ignore_states"`
	TriggerIfCanMerge  string         `toml:"trigger_if_can_merge"`
	FilterRegexp       string         `toml:"filter_regexp"`
	FilterString       string         `toml:"filter_string"`
	InjectionURL       string         `toml:"injection_url"`
	InjectionURLRegexp string         `toml:"injection_url_regexp"`
}

// rawButtonConfig stores one `[button.<name>]` table body.
type rawButtonConfig struct {
	Title        string `toml:"title"`
	AllowedUsers any    `toml:"allowed_users"`
}

// NotificationConfig is one normalized notification rule entry.
// Params: key-derived id plus raw table body.
// Returns: input for settings.NewNotification during snapshot build.
type NotificationConfig struct {
	ID                 string
	Name               string
	URL                string
	Method             string
	User               string
	Password           string
	PostContent        string
	Headers            []HeaderConfig
	Proxy              *ProxyConfig
	Triggers           []string
	IgnoreStates       []string
	TriggerIfCanMerge  string
	FilterRegexp       string
	FilterString       string
	InjectionURL       string
	InjectionURLRegexp string
}

// ButtonConfig is one normalized button entry.
type ButtonConfig struct {
	Key          string
	Title        string
	AllowedUsers []string
}

// HeaderConfig is one ordered outbound header entry.
type HeaderConfig struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

// ProxyConfig holds one outbound proxy endpoint.
type ProxyConfig struct {
	Server   string `toml:"server"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// ServiceConfig contains process-level settings.
// Params: name, HTTP listen address, reload and dispatch controls.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name               string `toml:"name"`
	Listen             string `toml:"listen"`
	ReloadEnabled      bool   `toml:"reload_enabled"`
	ReloadIntervalSec  int    `toml:"reload_interval_sec"`
	DispatchTimeoutSec int    `toml:"dispatch_timeout_sec"`
	HistorySize        int    `toml:"history_size"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// IngestConfig defines inbound event interfaces.
// Params: embedded HTTP webhook and NATS subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPIngestConfig configures the webhook endpoint.
// Params: enable flag, paths, and optional body size limit.
// Returns: HTTP ingest behavior.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	WebhookPath  string `toml:"webhook_path"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	MetricsPath  string `toml:"metrics_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection + ack/redelivery policy; stream routing keys are
// runtime-fixed.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// SCMConfig selects the pull-request host backend.
// Params: GitHub connection settings; empty token keeps the event cache.
// Returns: host lookup options.
type SCMConfig struct {
	GitHub GitHubConfig `toml:"github"`
}

// GitHubConfig holds GitHub API access settings.
type GitHubConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// GlobalSettings holds flags shared by every notification.
type GlobalSettings struct {
	AcceptAnyCertificate bool `toml:"accept_any_certificate"`
}

// stringListField normalizes one list-ish TOML field: a bare string
// means a single-element list. Decoded as `any` because the decoder
// maps arrays and scalars to different Go kinds.
// Params: field name for error context and decoded TOML value.
// Returns: normalized list, or an error for non-string content.
func stringListField(field string, value any) ([]string, error) {
	switch t := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, raw := range t {
			str, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%s contains non-string value %T", field, raw)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string or an array of strings, got %T", field, value)
	}
}

// ConfigSource selects exactly one of file path or directory path.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds a normalized source from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BuildSnapshot converts a validated config into a settings snapshot.
// Params: config already accepted by LoadSnapshot.
// Returns: immutable snapshot for the settings store, or the first
// builder error with notification/button context.
func BuildSnapshot(cfg Config) (settings.Snapshot, error) {
	snapshot := settings.Snapshot{
		Global: settings.Global{AcceptAnyCertificate: cfg.Settings.AcceptAnyCertificate},
	}
	for _, nc := range cfg.Notifications {
		notification, err := settings.NewNotification(notificationOpts(nc))
		if err != nil {
			return settings.Snapshot{}, fmt.Errorf("notification.%s: %w", nc.ID, err)
		}
		snapshot.Notifications = append(snapshot.Notifications, notification)
	}
	for _, bc := range cfg.Buttons {
		button, err := settings.NewButton(bc.Key, bc.Title, bc.AllowedUsers)
		if err != nil {
			return settings.Snapshot{}, fmt.Errorf("button.%s: %w", bc.Key, err)
		}
		snapshot.Buttons = append(snapshot.Buttons, button)
	}
	return snapshot, nil
}

// notificationOpts maps one config entry onto builder opts.
// Params: normalized notification config.
// Returns: opts for settings.NewNotification.
func notificationOpts(nc NotificationConfig) settings.NotificationOpts {
	opts := settings.NotificationOpts{
		ID:                 nc.ID,
		Name:               nc.Name,
		URL:                nc.URL,
		Method:             settings.Method(strings.ToUpper(strings.TrimSpace(nc.Method))),
		User:               nc.User,
		Password:           nc.Password,
		PostContent:        nc.PostContent,
		TriggerIfMerge:     settings.TriggerIfMerge(strings.ToUpper(strings.TrimSpace(nc.TriggerIfCanMerge))),
		FilterRegexp:       nc.FilterRegexp,
		FilterString:       nc.FilterString,
		InjectionURL:       nc.InjectionURL,
		InjectionURLRegexp: nc.InjectionURLRegexp,
	}
	for _, header := range nc.Headers {
		opts.Headers = append(opts.Headers, settings.Header{Name: header.Name, Value: header.Value})
	}
	if nc.Proxy != nil {
		opts.Proxy = &settings.Proxy{
			Server:   nc.Proxy.Server,
			Port:     nc.Proxy.Port,
			User:     nc.Proxy.User,
			Password: nc.Proxy.Password,
		}
	}
	for _, raw := range nc.Triggers {
		opts.Triggers = append(opts.Triggers, domain.Action(strings.ToUpper(strings.TrimSpace(raw))))
	}
	for _, raw := range nc.IgnoreStates {
		opts.IgnoreStates = append(opts.IgnoreStates, domain.PullRequestState(strings.ToUpper(strings.TrimSpace(raw))))
	}
	return opts
}

// normalizeRawConfig converts the raw TOML model to runtime config.
// Params: decoded raw config from one file.
// Returns: normalized config snapshot with name-sorted rule tables.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service:  raw.Service,
		Log:      raw.Log,
		Ingest:   raw.Ingest,
		SCM:      raw.SCM,
		Settings: raw.Settings,
	}

	names := make([]string, 0, len(raw.Notifications))
	for name := range raw.Notifications {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body := raw.Notifications[name]
		displayName := body.Name
		if strings.TrimSpace(displayName) == "" {
			displayName = name
		}
		triggers, err := stringListField(fmt.Sprintf("notification.%s.triggers", name), body.Triggers)
		if err != nil {
			return Config{}, err
		}
		ignoreStates, err := stringListField(fmt.Sprintf("notification.%s.trigger_ignore_states", name), body.IgnoreStates)
		if err != nil {
			return Config{}, err
		}
		cfg.Notifications = append(cfg.Notifications, NotificationConfig{
			ID:                 name,
			Name:               displayName,
			URL:                body.URL,
			Method:             body.Method,
			User:               body.User,
			Password:           body.Password,
			PostContent:        body.PostContent,
			Headers:            body.Headers,
			Proxy:              body.Proxy,
			Triggers:           triggers,
			IgnoreStates:       ignoreStates,
			TriggerIfCanMerge:  body.TriggerIfCanMerge,
			FilterRegexp:       body.FilterRegexp,
			FilterString:       body.FilterString,
			InjectionURL:       body.InjectionURL,
			InjectionURLRegexp: body.InjectionURLRegexp,
		})
	}

	buttonKeys := make([]string, 0, len(raw.Buttons))
	for key := range raw.Buttons {
		buttonKeys = append(buttonKeys, key)
	}
	sort.Strings(buttonKeys)
	for _, key := range buttonKeys {
		body := raw.Buttons[key]
		title := body.Title
		if strings.TrimSpace(title) == "" {
			title = key
		}
		allowed, err := stringListField(fmt.Sprintf("button.%s.allowed_users", key), body.AllowedUsers)
		if err != nil {
			return Config{}, err
		}
		cfg.Buttons = append(cfg.Buttons, ButtonConfig{
			Key:          key,
			Title:        title,
			AllowedUsers: allowed,
		})
	}

	return cfg, nil
}

// rejectUnsupportedSyntax checks forbidden TOML syntax.
// Params: raw TOML file body.
// Returns: error when unsupported syntax is detected.
func rejectUnsupportedSyntax(body []byte) error {
	if legacyNotificationArrayPattern.Match(body) {
		return errors.New("[[notification]] arrays are not supported; use [notification.<name>] tables")
	}
	if legacyButtonArrayPattern.Match(body) {
		return errors.New("[[button]] arrays are not supported; use [button.<name>] tables")
	}
	if fixedNATSKeysPattern.Match(body) {
		return errors.New("ingest.nats.subject/stream/consumer_name/deliver_group are fixed in runtime and must not be configured")
	}
	return nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := rejectUnsupportedSyntax(body); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays one fragment onto the destination. Scalar
// sections replace wholesale; notification and button lists append.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if hasIngestConfig(src.Ingest) {
		dst.Ingest = src.Ingest
	}
	if src.SCM != (SCMConfig{}) {
		dst.SCM = src.SCM
	}
	if src.Settings != (GlobalSettings{}) {
		dst.Settings = src.Settings
	}
	if len(src.Notifications) > 0 {
		dst.Notifications = append(dst.Notifications, src.Notifications...)
	}
	if len(src.Buttons) > 0 {
		dst.Buttons = append(dst.Buttons, src.Buttons...)
	}
}

// hasIngestConfig reports whether a fragment carries ingest settings.
// Params: ingest section from one fragment.
// Returns: true when any ingest field is set.
func hasIngestConfig(cfg IngestConfig) bool {
	return cfg.HTTP != (HTTPIngestConfig{}) || cfg.NATS.Enabled ||
		len(cfg.NATS.URL) > 0 || cfg.NATS.AckWaitSec != 0 ||
		cfg.NATS.MaxDeliver != 0 || cfg.NATS.MaxAckPending != 0
}

// applyDefaults fills omitted config fields with safe defaults.
// Params: decoded configuration pointer.
// Returns: defaults side-effect in cfg.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if strings.TrimSpace(cfg.Service.Listen) == "" {
		cfg.Service.Listen = defaultHTTPListen
	}
	if cfg.Service.ReloadIntervalSec <= 0 {
		cfg.Service.ReloadIntervalSec = defaultReloadSeconds
	}
	if cfg.Service.DispatchTimeoutSec <= 0 {
		cfg.Service.DispatchTimeoutSec = defaultDispatchTimeoutSec
	}
	if cfg.Service.HistorySize <= 0 {
		cfg.Service.HistorySize = defaultHistorySize
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if !cfg.Ingest.HTTP.Enabled && !cfg.Ingest.NATS.Enabled {
		cfg.Ingest.HTTP.Enabled = true
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.WebhookPath) == "" {
		cfg.Ingest.HTTP.WebhookPath = defaultWebhookPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.HealthPath) == "" {
		cfg.Ingest.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.ReadyPath) == "" {
		cfg.Ingest.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.MetricsPath) == "" {
		cfg.Ingest.HTTP.MetricsPath = defaultMetricsPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = 2 << 20
	}

	if cfg.Ingest.NATS.Enabled {
		if len(cfg.Ingest.NATS.URL) == 0 {
			cfg.Ingest.NATS.URL = []string{defaultNATSURL}
		}
		cfg.Ingest.NATS.Subject = defaultNATSSubject
		cfg.Ingest.NATS.Stream = defaultNATSStream
		cfg.Ingest.NATS.ConsumerName = defaultNATSConsumer
		cfg.Ingest.NATS.DeliverGroup = defaultNATSDeliverGroup
		if cfg.Ingest.NATS.AckWaitSec <= 0 {
			cfg.Ingest.NATS.AckWaitSec = defaultNATSAckWaitSec
		}
		if cfg.Ingest.NATS.MaxDeliver == 0 {
			cfg.Ingest.NATS.MaxDeliver = defaultNATSMaxDeliver
		}
		if cfg.Ingest.NATS.MaxAckPending <= 0 {
			cfg.Ingest.NATS.MaxAckPending = defaultNATSMaxAckPending
		}
	}
}

// validateConfig checks one decoded configuration snapshot.
// Params: configuration with defaults applied.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	switch cfg.Log.Console.Format {
	case "line", "json":
	default:
		return fmt.Errorf("log.console.format %q is not supported", cfg.Log.Console.Format)
	}
	if cfg.Log.File.Enabled && strings.TrimSpace(cfg.Log.File.Path) == "" {
		return errors.New("log.file.path is required when file sink is enabled")
	}

	seen := make(map[string]struct{}, len(cfg.Notifications))
	for _, nc := range cfg.Notifications {
		if _, dup := seen[nc.ID]; dup {
			return fmt.Errorf("duplicate notification table %q across config fragments", nc.ID)
		}
		seen[nc.ID] = struct{}{}
		if _, err := settings.NewNotification(notificationOpts(nc)); err != nil {
			return fmt.Errorf("notification.%s: %w", nc.ID, err)
		}
	}

	seenButtons := make(map[string]struct{}, len(cfg.Buttons))
	for _, bc := range cfg.Buttons {
		if _, dup := seenButtons[bc.Key]; dup {
			return fmt.Errorf("duplicate button table %q across config fragments", bc.Key)
		}
		seenButtons[bc.Key] = struct{}{}
		if _, err := settings.NewButton(bc.Key, bc.Title, bc.AllowedUsers); err != nil {
			return fmt.Errorf("button.%s: %w", bc.Key, err)
		}
	}
	return nil
}
