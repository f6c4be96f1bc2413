package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

const (
	defaultHost        = "http://127.0.0.1:8000"
	defaultPollSeconds = 5
	defaultReconnectS  = 2
	defaultRecordLimit = 20
	defaultTimeoutS    = 10
	defaultAccent      = "#05ffa1"
)

type appConfig struct {
	baseURL        string
	entityID       string
	pollInterval   time.Duration
	reconnectDelay time.Duration
	recordLimit    int
	requestTimeout time.Duration
	accent         string
	eventLogPath   string
	altScreen      bool
	configPath     string
}

func defaultConfig() appConfig {
	return appConfig{
		baseURL:        defaultHost,
		pollInterval:   defaultPollSeconds * time.Second,
		reconnectDelay: defaultReconnectS * time.Second,
		recordLimit:    defaultRecordLimit,
		requestTimeout: defaultTimeoutS * time.Second,
		accent:         defaultAccent,
		altScreen:      true,
	}
}

// fileConfig mirrors ~/.config/rockpool/config.toml. Zero values mean "not
// set"; alt_screen needs a pointer to tell false from absent.
type fileConfig struct {
	Host             string `toml:"host"`
	Entity           string `toml:"entity"`
	PollSeconds      int    `toml:"poll_seconds"`
	ReconnectSeconds int    `toml:"reconnect_seconds"`
	RecordLimit      int    `toml:"record_limit"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	Accent           string `toml:"accent"`
	EventLog         string `toml:"event_log"`
	AltScreen        *bool  `toml:"alt_screen"`
}

func readConfigFile(path string) (fileConfig, error) {
	var file fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return file, err
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse %s: %w", path, err)
	}
	return file, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".config", "rockpool", "config.toml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func applyFileConfig(cfg *appConfig, file fileConfig) {
	if file.Host != "" {
		cfg.baseURL = file.Host
	}
	if file.Entity != "" {
		cfg.entityID = file.Entity
	}
	if file.PollSeconds > 0 {
		cfg.pollInterval = time.Duration(file.PollSeconds) * time.Second
	}
	if file.ReconnectSeconds > 0 {
		cfg.reconnectDelay = time.Duration(file.ReconnectSeconds) * time.Second
	}
	if file.RecordLimit > 0 {
		cfg.recordLimit = file.RecordLimit
	}
	if file.TimeoutSeconds > 0 {
		cfg.requestTimeout = time.Duration(file.TimeoutSeconds) * time.Second
	}
	if file.Accent != "" {
		cfg.accent = file.Accent
	}
	if file.EventLog != "" {
		cfg.eventLogPath = file.EventLog
	}
	if file.AltScreen != nil {
		cfg.altScreen = *file.AltScreen
	}
}

func applyEnvConfig(cfg *appConfig) {
	cfg.baseURL = envOr("ROCKPOOL_HOST", cfg.baseURL)
	cfg.entityID = envOr("ROCKPOOL_ENTITY", cfg.entityID)
	cfg.pollInterval = time.Duration(envOrInt("ROCKPOOL_POLL_SECONDS", int(cfg.pollInterval/time.Second))) * time.Second
	cfg.reconnectDelay = time.Duration(envOrInt("ROCKPOOL_RECONNECT_SECONDS", int(cfg.reconnectDelay/time.Second))) * time.Second
	cfg.recordLimit = envOrInt("ROCKPOOL_RECORD_LIMIT", cfg.recordLimit)
	cfg.requestTimeout = time.Duration(envOrInt("ROCKPOOL_TIMEOUT_SECONDS", int(cfg.requestTimeout/time.Second))) * time.Second
	cfg.accent = envOr("ROCKPOOL_ACCENT", cfg.accent)
	cfg.eventLogPath = envOr("ROCKPOOL_EVENT_LOG", cfg.eventLogPath)
	cfg.altScreen = envOrBool("ROCKPOOL_ALT_SCREEN", cfg.altScreen)
}

func clampConfig(cfg *appConfig) {
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		cfg.baseURL = defaultHost
	}
	cfg.pollInterval = time.Duration(clampInt(int(cfg.pollInterval/time.Second), 1, 120)) * time.Second
	cfg.reconnectDelay = time.Duration(clampInt(int(cfg.reconnectDelay/time.Second), 1, 60)) * time.Second
	cfg.recordLimit = clampInt(cfg.recordLimit, 1, 500)
	cfg.requestTimeout = time.Duration(clampInt(int(cfg.requestTimeout/time.Second), 1, 120)) * time.Second
	if strings.TrimSpace(cfg.accent) == "" {
		cfg.accent = defaultAccent
	}
}

// applyReload merges the safe-to-reload fields of a rewritten config file
// into the running config. Host and entity changes require a restart and are
// ignored here.
func applyReload(cfg appConfig, file fileConfig) appConfig {
	if file.PollSeconds > 0 {
		cfg.pollInterval = time.Duration(file.PollSeconds) * time.Second
	}
	if file.ReconnectSeconds > 0 {
		cfg.reconnectDelay = time.Duration(file.ReconnectSeconds) * time.Second
	}
	if file.Accent != "" {
		cfg.accent = file.Accent
	}
	clampConfig(&cfg)
	return cfg
}

type cliFlags struct {
	host             string
	entity           string
	configPath       string
	timeoutSeconds   int
	pollSeconds      int
	reconnectSeconds int
	recordLimit      int
	accent           string
	eventLog         string
	altScreen        bool
}

// loadAppConfig layers the four config sources: built-in defaults, the TOML
// file, ROCKPOOL_* environment, then explicitly set flags.
func loadAppConfig(cmd *cobra.Command, opts *cliFlags) (appConfig, error) {
	cfg := defaultConfig()

	path := strings.TrimSpace(opts.configPath)
	explicit := path != ""
	if !explicit {
		path = envOr("ROCKPOOL_CONFIG", "")
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		file, err := readConfigFile(path)
		if err != nil {
			if explicit {
				return cfg, err
			}
		} else {
			applyFileConfig(&cfg, file)
			cfg.configPath = path
		}
	}

	applyEnvConfig(&cfg)

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.baseURL = opts.host
	}
	if flags.Changed("entity") {
		cfg.entityID = opts.entity
	}
	if flags.Changed("request-timeout") {
		cfg.requestTimeout = time.Duration(opts.timeoutSeconds) * time.Second
	}
	if flags.Changed("poll-interval") {
		cfg.pollInterval = time.Duration(opts.pollSeconds) * time.Second
	}
	if flags.Changed("reconnect-delay") {
		cfg.reconnectDelay = time.Duration(opts.reconnectSeconds) * time.Second
	}
	if flags.Changed("record-limit") {
		cfg.recordLimit = opts.recordLimit
	}
	if flags.Changed("accent") {
		cfg.accent = opts.accent
	}
	if flags.Changed("event-log") {
		cfg.eventLogPath = opts.eventLog
	}
	if flags.Changed("alt-screen") {
		cfg.altScreen = opts.altScreen
	}

	clampConfig(&cfg)
	return cfg, nil
}

type configFileMsg struct {
	file fileConfig
}

// runConfigWatcher re-reads the config file whenever it is rewritten and
// hands the result to the program loop. Editors often replace instead of
// write in place, so the watch covers the directory and filters by name.
func runConfigWatcher(path string, out chan<- tea.Msg) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return
	}
	base := filepath.Base(path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			file, err := readConfigFile(path)
			if err != nil {
				continue
			}
			select {
			case out <- configFileMsg{file: file}:
			default:
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliFlags{}
	cmd := &cobra.Command{
		Use:   "rockpool-tui",
		Short: "Terminal observer for autonomous-creature habitat hosts",
		Long: "rockpool-tui watches the creatures living on a habitat host: their\n" +
			"thoughts, tool use, conversations, and wanderings, reconciled into a\n" +
			"single live transcript. Run with no arguments to open the TUI.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runTUI(cfg)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&opts.host, "host", defaultHost, "Habitat host base URL")
	persistent.StringVar(&opts.entity, "entity", "", "Entity id to observe (default: host's first)")
	persistent.StringVar(&opts.configPath, "config", "", "Config file path (default ~/.config/rockpool/config.toml)")
	persistent.IntVar(&opts.timeoutSeconds, "request-timeout", defaultTimeoutS, "Request timeout seconds")

	local := cmd.Flags()
	local.IntVar(&opts.pollSeconds, "poll-interval", defaultPollSeconds, "Registry poll interval seconds")
	local.IntVar(&opts.reconnectSeconds, "reconnect-delay", defaultReconnectS, "Stream reconnect delay seconds")
	local.IntVar(&opts.recordLimit, "record-limit", defaultRecordLimit, "Call records fetched on bootstrap")
	local.StringVar(&opts.accent, "accent", defaultAccent, "Accent color (hex)")
	local.StringVar(&opts.eventLog, "event-log", "", "JSONL client event log path")
	local.BoolVar(&opts.altScreen, "alt-screen", true, "Use alternate screen buffer")

	cmd.AddCommand(newEntitiesCmd(opts), newSayCmd(opts), newHatchCmd(opts), newWatchCmd(opts))
	return cmd
}

func newEntitiesCmd(opts *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the entities on the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd, opts)
			if err != nil {
				return err
			}
			client := newHostClient(cfg.baseURL, cfg.requestTimeout)
			list, err := client.entities(context.Background())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("no entities")
				return nil
			}
			fmt.Printf("%-16s %-16s %-12s %s\n", "ID", "NAME", "STATE", "THOUGHTS")
			for _, e := range list {
				fmt.Printf("%-16s %-16s %-12s %d\n", e.ID, e.Name, e.State, e.ThoughtCount)
			}
			return nil
		},
	}
}

func newSayCmd(opts *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>...",
		Short: "Send a message to an entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd, opts)
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("message is empty")
			}
			client := newHostClient(cfg.baseURL, cfg.requestTimeout)
			return client.sendMessage(context.Background(), cfg.entityID, text)
		},
	}
}

func newHatchCmd(opts *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "hatch <name>",
		Short: "Create a new entity on the host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd, opts)
			if err != nil {
				return err
			}
			client := newHostClient(cfg.baseURL, cfg.requestTimeout)
			created, err := client.createEntity(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("hatched %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
}

func newWatchCmd(opts *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Copy an entity's live event stream to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			client := newHostClient(cfg.baseURL, cfg.requestTimeout)
			body, err := client.openStream(ctx, cfg.entityID)
			if err != nil {
				return err
			}
			defer body.Close()
			if _, err := io.Copy(os.Stdout, body); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func runTUI(cfg appConfig) error {
	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if cfg.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(cfg), opts...)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("rockpool-tui fatal error: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
