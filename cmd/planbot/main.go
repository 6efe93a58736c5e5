// planbot - personal planner bot with scheduled reminders
// License: MIT
//
// Copyright (c) 2026 planbot contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/planbot/pkg/agent"
	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/channels"
	"github.com/dotsetgreg/planbot/pkg/config"
	"github.com/dotsetgreg/planbot/pkg/health"
	"github.com/dotsetgreg/planbot/pkg/ledger"
	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/metrics"
	"github.com/dotsetgreg/planbot/pkg/planner"
	"github.com/dotsetgreg/planbot/pkg/scheduler"
	"github.com/dotsetgreg/planbot/pkg/session"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "planbot"

// configPathOverride is set by the root --config flag.
var configPathOverride string

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func onboard(in io.Reader, out io.Writer) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Config already exists at %s\n", configPath)
		fmt.Fprint(out, "Overwrite? (y/n): ")
		response, readErr := bufio.NewReader(in).ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read answer: %w", readErr)
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataPath(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Fprintf(out, "%s is ready!\n", appName)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Add your Discord bot token to channels.discord.token in", configPath)
	fmt.Fprintln(out, "     or export PLANBOT_CHANNELS_DISCORD_TOKEN")
	fmt.Fprintln(out, "  2. Restrict who may use the bot with channels.discord.allow_from")
	fmt.Fprintln(out, "  3. Try it locally: planbot chat")
	fmt.Fprintln(out, "  4. Run the bot: planbot gateway")
	return nil
}

// app holds everything a command needs once config is loaded.
type app struct {
	cfg        *config.Config
	configPath string
	bus        *bus.MessageBus
	metrics    *metrics.Collector
	sessions   *session.Store
	events     *planner.LineStore
	completed  *planner.LineStore
	photos     *planner.PhotoLog
	ledger     ledger.Ledger
}

// setupLogging applies the configured level and format; debug wins over
// the configured level.
func setupLogging(cfg *config.Config, debug bool) {
	logger.SetFormat(cfg.Log.Format)
	if debug {
		logger.SetLevel(logger.DEBUG)
		return
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
}

// openApp loads config and opens every store under the data directory.
func openApp(debug bool) (*app, error) {
	configPath := getConfigPath()
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg, debug)

	// Planner timestamps carry no zone; they are read in the configured one.
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	time.Local = loc

	dataDir := cfg.DataPath()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	sessions, err := session.NewStore(dataDir)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.Storage.LedgerBackend, dataDir)
	if err != nil {
		return nil, fmt.Errorf("open reminder ledger: %w", err)
	}

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		bus:        bus.NewMessageBus(),
		metrics:    metrics.New(),
		sessions:   sessions,
		events:     planner.NewEventStore(dataDir),
		completed:  planner.NewCompletedStore(dataDir),
		photos:     planner.NewPhotoLog(dataDir),
		ledger:     l,
	}
	a.metrics.RegisterGauge("bus_pending_inbound", "Inbound messages waiting for the conversation engine.", func() float64 {
		return float64(a.bus.Pending())
	})
	a.metrics.RegisterGauge("bus_dropped_inbound", "Inbound messages dropped because the bus was full.", func() float64 {
		return float64(a.bus.DroppedInbound())
	})
	a.metrics.RegisterGauge("ledger_keys", "Reminder keys currently held by the ledger.", func() float64 {
		n, err := a.ledger.Len(context.Background())
		if err != nil {
			return 0
		}
		return float64(n)
	})
	return a, nil
}

func (a *app) close() {
	a.bus.Close()
	if err := a.ledger.Close(); err != nil {
		logger.WarnCF("main", "Closing ledger failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Sync()
}

// markers are the scheduler's marker words, offered as hashtag suggestions.
func (a *app) markers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(m string) {
		m = planner.NormalizeTag(m)
		if m == "" || seen[strings.ToLower(m)] {
			return
		}
		seen[strings.ToLower(m)] = true
		out = append(out, m)
	}
	for _, da := range a.cfg.Scheduler.DayAhead {
		add(da.Marker)
	}
	for _, m := range a.cfg.Scheduler.LookaheadMarkers {
		add(m)
	}
	return out
}

func (a *app) newAgent(sender channels.Sender) (*agent.AgentLoop, error) {
	return agent.NewAgentLoop(agent.Options{
		Bus:         a.bus,
		Sender:      sender,
		Sessions:    a.sessions,
		Events:      a.events,
		Completed:   a.completed,
		Photos:      a.photos,
		Metrics:     a.metrics,
		DaysPerPage: a.cfg.Conversation.DaysPerPage,
		Markers:     a.markers(),
	})
}

func (a *app) newScheduler(sender channels.Sender) (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Options{
		Config:  a.cfg.Scheduler,
		Users:   a.sessions,
		Events:  a.events,
		Ledger:  a.ledger,
		Sender:  sender,
		Metrics: a.metrics,
	})
}

func gatewayCmd(debug bool) error {
	a, err := openApp(debug)
	if err != nil {
		return err
	}
	defer a.close()

	if strings.TrimSpace(a.cfg.Channels.Discord.Token) == "" {
		return fmt.Errorf("channels.discord.token is not set in %s (or PLANBOT_CHANNELS_DISCORD_TOKEN)", a.configPath)
	}

	channelManager, err := channels.NewManager(a.cfg, a.bus, a.metrics)
	if err != nil {
		return fmt.Errorf("create channel manager: %w", err)
	}
	agentLoop, err := a.newAgent(channelManager)
	if err != nil {
		return err
	}
	var sched *scheduler.Scheduler
	if a.cfg.Scheduler.Enabled {
		if sched, err = a.newScheduler(channelManager); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	fmt.Printf("✓ Channels enabled: %s\n", strings.Join(channelManager.GetEnabledChannels(), ", "))

	healthServer := health.NewServer(a.cfg.Gateway.Host, a.cfg.Gateway.Port, a.metrics.Registry())
	healthServer.AddCheck("channels", func(context.Context) error {
		if !channelManager.AnyRunning() {
			return fmt.Errorf("no channel running: %v", channelManager.GetStatus())
		}
		return nil
	})
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Health server error", map[string]interface{}{"error": err.Error()})
		}
	}()
	fmt.Printf("✓ Health endpoints available at http://%s:%d/health, /ready and /metrics\n", a.cfg.Gateway.Host, a.cfg.Gateway.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agentLoop.Run(gctx) })
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
		fmt.Println("✓ Scheduler started")
	}
	go func() {
		err := config.Watch(ctx, a.configPath, func(next *config.Config) {
			a.cfg.SetAllowFrom(next.AllowFrom())
			channelManager.SetAllowList(next.AllowFrom())
		})
		if err != nil {
			logger.WarnCF("config", "Config reload disabled", map[string]interface{}{"error": err.Error()})
		}
	}()

	healthServer.SetReady(true)
	fmt.Println("✓ Gateway started. Press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Wait(); err != nil {
		logger.ErrorCF("main", "Worker stopped with error", map[string]interface{}{"error": err.Error()})
	}
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.WarnCF("health", "Health server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := channelManager.StopAll(shutdownCtx); err != nil {
		logger.WarnCF("channels", "Stopping channels failed", map[string]interface{}{"error": err.Error()})
	}
	fmt.Println("✓ Gateway stopped")
	return nil
}

// chatCmd runs the conversation engine against a single terminal user.
func chatCmd(user string, debug, withScheduler bool) error {
	a, err := openApp(debug)
	if err != nil {
		return err
	}
	defer a.close()
	if !debug {
		// Log lines would interleave with the conversation.
		logger.SetLevel(logger.WARN)
	}

	channelManager, err := channels.NewManager(nil, a.bus, a.metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cli := channels.NewCLIChannel(channels.CLIOptions{
		User:        user,
		HistoryFile: filepath.Join(a.cfg.DataPath(), ".chat_history"),
		OnQuit:      cancel,
	}, a.bus)
	channelManager.RegisterChannel("cli", cli)

	agentLoop, err := a.newAgent(channelManager)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agentLoop.Run(gctx) })
	if withScheduler {
		sched, err := a.newScheduler(channelManager)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	if err := channelManager.StartAll(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("start terminal: %w", err)
	}
	fmt.Printf("%s chat as %q. Type a menu label or /N to press a button, exit to quit.\n", appName, user)
	a.bus.PublishInbound(bus.InboundMessage{Channel: "cli", UserID: user, ChatID: user, Content: "/"})

	select {
	case <-ctx.Done():
	case <-cli.Done():
		cancel()
	}
	err = g.Wait()
	_ = channelManager.StopAll(context.Background())
	return err
}

// sortCmd rewrites a user's planner in chronological order.
func sortCmd(user string, out io.Writer) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.events.Sort(user); err != nil {
		return fmt.Errorf("sort planner for %s: %w", user, err)
	}
	lines, err := a.events.ReadAll(user)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Sorted %d line(s) for %s\n", len(lines), user)
	return nil
}

// exportCmd writes a user's planner as an iCalendar file; an empty path
// writes to out.
func exportCmd(user, path string, out io.Writer) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	events, _, err := a.events.Events(user)
	if err != nil {
		return fmt.Errorf("read planner for %s: %w", user, err)
	}
	ics := planner.ExportICS(user, events, time.Now())
	if path == "" {
		_, err := io.WriteString(out, ics)
		return err
	}
	if err := os.WriteFile(path, []byte(ics), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(out, "✓ Exported %d event(s) to %s\n", len(events), path)
	return nil
}

func statusCmd(out io.Writer) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Fprintf(out, "%s Status\n", appName)
	fmt.Fprintf(out, "Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(out, "Build: %s\n", build)
	}
	fmt.Fprintln(out)

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}
	_, cfgErr := os.Stat(a.configPath)
	fmt.Fprintln(out, "Config:", a.configPath, mark(cfgErr == nil))
	_, dataErr := os.Stat(a.cfg.DataPath())
	fmt.Fprintln(out, "Data dir:", a.cfg.DataPath(), mark(dataErr == nil))

	discordReady := strings.TrimSpace(a.cfg.Channels.Discord.Token) != ""
	if discordReady {
		fmt.Fprintln(out, "Discord token: ✓")
	} else {
		fmt.Fprintln(out, "Discord token: not set")
	}
	fmt.Fprintf(out, "Allow-list: %d user(s)\n", len(a.cfg.AllowFrom()))
	fmt.Fprintf(out, "Scheduler: %s\n", mark(a.cfg.Scheduler.Enabled))

	keys, err := a.ledger.Len(context.Background())
	if err != nil {
		fmt.Fprintf(out, "Reminder ledger: %s (%v)\n", a.cfg.Storage.LedgerBackend, err)
	} else {
		fmt.Fprintf(out, "Reminder ledger: %s, %d key(s)\n", a.cfg.Storage.LedgerBackend, keys)
	}
	fmt.Fprintf(out, "Users: %d\n", len(a.sessions.Users()))
	fmt.Fprintln(out, "Gateway ready:", mark(discordReady))
	return nil
}

func sessionCmd(user string, reset bool, out io.Writer) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if reset {
		if err := a.sessions.ClearData(user); err != nil {
			return fmt.Errorf("clear session data: %w", err)
		}
		if err := a.sessions.SetState(user, session.Idle); err != nil {
			return fmt.Errorf("reset session state: %w", err)
		}
		fmt.Fprintf(out, "Reset %s to the main menu\n", user)
	}

	sess, err := a.sessions.GetOrCreate(user)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	data, err := a.sessions.GetData(user)
	if err != nil {
		return fmt.Errorf("load session data: %w", err)
	}
	scratch, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}
	fmt.Fprintf(out, "State: %s\n", sess.State)
	fmt.Fprintf(out, "Next event id: %s\n", planner.FormatEventID(sess.NextEventSeq))
	fmt.Fprintf(out, "Scratch: %s\n", scratch)
	return nil
}

// getConfigPath resolves --config, then PLANBOT_CONFIG, then
// ~/.planbot/config.json.
func getConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}
	if p := strings.TrimSpace(os.Getenv("PLANBOT_CONFIG")); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".planbot", "config.json")
}
