package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	agentpkg "github.com/nextlevelbuilder/goclaw/internal/agent"
	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/channels/cli"
	"github.com/nextlevelbuilder/goclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/goclaw/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	agentcontext "github.com/nextlevelbuilder/goclaw/internal/context"
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/gitupdate"
	"github.com/nextlevelbuilder/goclaw/internal/mcp"
	"github.com/nextlevelbuilder/goclaw/internal/memory"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/skills"
	"github.com/nextlevelbuilder/goclaw/internal/summary"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the gateway: bus, agent loop, cron, git-updater, and every configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		rt.registerExternalChannels(cfg)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		rt.start(ctx)
		<-ctx.Done()
		logger.Info("shutting down")
		rt.stop(context.Background())
		return nil
	},
}

// runtime bundles every subsystem the gateway and chat commands both need,
// built in leaf-first dependency order (§9 "Global state").
type runtime struct {
	cfg *config.Config

	bus      *bus.MessageBus
	sessions *sessions.Manager
	memory   *memory.Store
	skills   *skills.Loader
	builder  *agentcontext.Builder
	registry *tools.Registry

	provider   providers.Provider
	summarizer *summary.Summarizer
	loop       *agentpkg.Loop

	mcpClient  *mcp.Client
	mcpMonitor *mcp.HealthMonitor

	cronSvc *cron.Service

	gitSvc *gitupdate.Service

	channelMgr *channels.Manager
}

// buildRuntime constructs every subsystem wired per SPEC_FULL.md §9: bus,
// sessions, memory, skills, bootstrap files, context builder, native tools,
// MCP client, provider, summarizer, agent loop, cron, and git-updater. It
// does not start anything or register external channels.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	workspace := cfg.WorkspacePath()
	if _, err := bootstrap.EnsureWorkspaceFiles(workspace); err != nil {
		return nil, fmt.Errorf("seed workspace: %w", err)
	}

	r := &runtime{cfg: cfg}
	r.bus = bus.New()
	r.sessions = sessions.NewManager(cfg.Sessions.Storage)
	r.memory = memory.NewStore(workspace, cfg.Workspace.RecentDays)
	r.skills = skills.NewLoader(workspace, cfg.Skills.BuiltinDir)
	r.builder = &agentcontext.Builder{Workspace: workspace, Memory: r.memory, Skills: r.skills}

	r.registry = tools.NewRegistry()
	r.registry.Add(tools.NewReadFileTool(workspace, cfg.Workspace.Restrict))
	r.registry.Add(tools.NewWriteFileTool(workspace, cfg.Workspace.Restrict))
	r.registry.Add(tools.NewEditFileTool(workspace, cfg.Workspace.Restrict))
	r.registry.Add(tools.NewListDirTool(workspace, cfg.Workspace.Restrict))
	r.registry.Add(tools.NewExecTool(workspace, cfg.Workspace.Restrict))

	if !cfg.HasProvider() {
		logger.Warn("no provider api key configured; agent turns will fail until one is set")
	}
	r.provider = providers.NewOpenAIProvider(cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
	if cfg.Summary.Enabled {
		r.summarizer = summary.New(r.provider, cfg.Provider.Model, cfg.Summary.Retain, cfg.Summary.Trigger)
	}

	r.loop = &agentpkg.Loop{
		Router:        r.bus,
		Sessions:      r.sessions,
		Registry:      r.registry,
		Builder:       r.builder,
		Summarizer:    r.summarizer,
		Provider:      r.provider,
		Skills:        r.skills,
		Model:         cfg.Provider.Model,
		MaxIterations: 20,
		Logger:        logger,
	}

	if err := r.buildMCP(cfg); err != nil {
		return nil, err
	}
	r.builder.MCPConnected = r.mcpClient.IsConnected

	cronStore, err := cron.NewStore(cfg.Cron.JobsFile)
	if err != nil {
		return nil, fmt.Errorf("open cron store: %w", err)
	}
	r.cronSvc = cron.NewService(cronStore,
		func(ctx context.Context, message, sessionKey string) (string, error) {
			return r.loop.ProcessDirect(ctx, message, sessionKey, "cron", sessionKey)
		},
		func(channel, to, result string) {
			r.bus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: to, Content: result})
		},
	)
	r.registry.Add(tools.NewCronTool(r.cronSvc))

	gitSvc, err := gitupdate.NewService(cfg.GitUpdate.StateFile, func(repo *gitupdate.Repo, result gitupdate.Result) {
		if !repo.NotifyOnChange {
			return
		}
		msg := fmt.Sprintf("git-update %s: %s", repo.ID, result.Status)
		if _, ok := r.channelMgr.GetChannel("cli"); ok {
			_ = r.channelMgr.SendToChannel(context.Background(), "cli", cli.ChatID, msg)
			return
		}
		logger.Info("git-update change", "repo", repo.ID, "status", result.Status)
	})
	if err != nil {
		return nil, fmt.Errorf("open git-update state: %w", err)
	}
	r.gitSvc = gitSvc
	repos := make([]gitupdate.Repo, 0, len(cfg.GitUpdate.Repos))
	for _, rc := range cfg.GitUpdate.Repos {
		repos = append(repos, gitupdate.Repo{
			ID: rc.ID, Path: rc.Path, Branch: rc.Branch, Schedule: rc.Schedule,
			Enabled: rc.Enabled, OnUpdate: rc.OnUpdate, OnConflict: rc.OnConflict,
			NotifyOnChange: rc.NotifyOnChange,
		})
	}
	if err := r.gitSvc.Configure(repos); err != nil {
		return nil, fmt.Errorf("configure git-update repos: %w", err)
	}

	r.channelMgr = channels.NewManager(r.bus)
	return r, nil
}

// buildMCP connects every enabled MCP server and wires a reconnect handler
// that refreshes the server's tool adapters in the shared registry (§4.7).
func (r *runtime) buildMCP(cfg *config.Config) error {
	r.mcpClient = mcp.NewClient()
	r.mcpClient.SetReconnectHandler(func(serverName string, toolDefs []mcp.ToolDef) {
		r.registry.RemovePrefixed(serverName + "_")
		for _, def := range toolDefs {
			r.registry.Add(mcp.NewToolAdapter(r.mcpClient, serverName, def))
		}
	})

	var servers []mcp.ServerConfig
	for name, sc := range cfg.Tools.McpServers {
		if !sc.IsEnabled() {
			continue
		}
		servers = append(servers, mcp.ServerConfig{
			Name: name, Transport: sc.Transport, Enabled: true,
			Command: sc.Command, Args: sc.Args, Env: sc.Env, URL: sc.URL,
			TimeoutSeconds: sc.TimeoutSec, ReconnectMaxTry: sc.ReconnectMaxTry,
		})
	}

	// Each server's handshake (stdio subprocess spawn or SSE dial) can block
	// independently, so connect them concurrently rather than paying their
	// timeouts back to back at startup (§4.7); registry mutation happens
	// afterward in this single goroutine purely to keep startup ordering
	// simple (Registry itself is safe for concurrent use, guarding every
	// access with a mutex, since the reconnect path mutates it from the
	// health-monitor goroutine at runtime).
	connectErrs := make([]error, len(servers))
	g, gctx := errgroup.WithContext(context.Background())
	for i, srv := range servers {
		i, srv := i, srv
		g.Go(func() error {
			connectErrs[i] = r.mcpClient.Connect(gctx, srv)
			return nil
		})
	}
	_ = g.Wait()

	for i, srv := range servers {
		if connectErrs[i] != nil {
			logger.Warn("mcp server failed to connect at startup; health monitor will retry", "server", srv.Name, "error", connectErrs[i])
			continue
		}
		for _, def := range r.mcpClient.ListTools(srv.Name) {
			r.registry.Add(mcp.NewToolAdapter(r.mcpClient, srv.Name, def))
		}
	}
	if len(servers) > 0 {
		r.mcpMonitor = mcp.NewHealthMonitor(r.mcpClient, servers, logger)
	}
	return nil
}

// registerExternalChannels wires the telegram/discord/whatsapp transports
// that are enabled in config. The CLI channel is registered separately by
// the chat command (§1).
func (r *runtime) registerExternalChannels(cfg *config.Config) {
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, r.bus)
		if err != nil {
			logger.Error("telegram channel init failed", "error", err)
		} else {
			r.channelMgr.RegisterChannel("telegram", ch)
		}
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, r.bus)
		if err != nil {
			logger.Error("discord channel init failed", "error", err)
		} else {
			r.channelMgr.RegisterChannel("discord", ch)
		}
	}
	if cfg.Channels.WhatsApp.Enabled {
		ch, err := whatsapp.New(cfg.Channels.WhatsApp, r.bus)
		if err != nil {
			logger.Error("whatsapp channel init failed", "error", err)
		} else {
			r.channelMgr.RegisterChannel("whatsapp", ch)
		}
	}
}

// start launches the agent loop consumer, cron and git-update schedulers,
// the MCP health monitor, and every registered channel.
func (r *runtime) start(ctx context.Context) {
	go r.loop.Run(ctx)
	r.cronSvc.Start(ctx)
	r.gitSvc.Start(ctx)
	if r.mcpMonitor != nil {
		go r.mcpMonitor.Run(ctx)
	}
	if err := r.channelMgr.StartAll(ctx); err != nil {
		logger.Error("channel start failed", "error", err)
	}

	go func() {
		if err := bootstrap.Watch(ctx, r.cfg.WorkspacePath(), func() {
			diff := r.loop.ReloadContext()
			logger.Info("workspace reload", "added", diff.Added, "removed", diff.Removed)
		}); err != nil {
			logger.Warn("bootstrap watch failed", "error", err)
		}
	}()
}

func (r *runtime) stop(ctx context.Context) {
	if err := r.channelMgr.StopAll(ctx); err != nil {
		logger.Error("channel stop failed", "error", err)
	}
	r.cronSvc.Stop()
	r.gitSvc.Stop()
	r.mcpClient.DisconnectAll(ctx)
}
