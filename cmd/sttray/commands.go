package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/loykin/sttray/internal/app"
	"github.com/loykin/sttray/internal/config"
	"github.com/loykin/sttray/internal/logger"
	"github.com/loykin/sttray/pkg/client"
)

var (
	runningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	labelStyle   = lipgloss.NewStyle().Width(12)
)

func createRunCommand(gf *GlobalFlags, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tray icon and bridge (blocks until quit)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd.Context(), gf, f)
		},
	}
	cmd.Flags().BoolVar(&f.Headless, "headless", false, "do not show a tray icon")
	return cmd
}

func runApp(parent context.Context, gf *GlobalFlags, f *RunFlags) error {
	loader := config.NewLoader(gf.ConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	log := logger.Config{Slog: cfg.Log, Level: level}.NewSlogger()
	slog.SetDefault(log)

	a, err := app.New(cfg, app.Options{Headless: f.Headless, Loader: loader, Logger: log, Level: level})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func createStartCommand(gf *GlobalFlags, f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the STT daemon in a running instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(gf, f)
			if err != nil {
				return err
			}
			msg, err := c.Start(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createStopCommand(gf *GlobalFlags, f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Force-stop the STT daemon in a running instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(gf, f)
			if err != nil {
				return err
			}
			msg, err := c.Stop(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createStatusCommand(gf *GlobalFlags, f *ClientFlags, sf *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the STT daemon is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(gf, f)
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), c, sf)
		},
	}
	addClientFlags(cmd, f)
	cmd.Flags().BoolVar(&sf.Detailed, "detailed", false, "include pid, liveness and resource usage")
	cmd.Flags().BoolVar(&sf.JSON, "json", false, "print machine-readable output")
	return cmd
}

func printStatus(ctx context.Context, w io.Writer, c *client.Client, sf *StatusFlags) error {
	if !sf.Detailed {
		running, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if sf.JSON {
			return json.NewEncoder(w).Encode(running)
		}
		_, _ = fmt.Fprintln(w, stateText(running))
		return nil
	}

	info, err := c.Info(ctx)
	if err != nil {
		return err
	}
	if sf.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	row := func(k, v string) { _, _ = fmt.Fprintln(w, labelStyle.Render(k)+v) }
	row("status", stateText(info.Running))
	if !info.Running {
		return nil
	}
	row("pid", fmt.Sprint(info.PID))
	row("started", info.StartedAt.Local().Format(time.RFC3339))
	row("alive", fmt.Sprint(info.Alive))
	if info.ExitError != "" {
		row("exit", errorStyle.Render(info.ExitError))
	}
	if info.Usage != nil {
		row("cpu", fmt.Sprintf("%.1f%%", info.Usage.CPUPercent))
		row("rss", fmt.Sprintf("%.1f MiB", float64(info.Usage.MemoryRSS)/(1<<20)))
		row("threads", fmt.Sprint(info.Usage.NumThreads))
	}
	return nil
}

func stateText(running bool) string {
	if running {
		return runningStyle.Render("running")
	}
	return stoppedStyle.Render("stopped")
}

func createEventsCommand(gf *GlobalFlags, f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow broadcast events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(gf, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return followEvents(ctx, cmd.OutOrStdout(), c)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func followEvents(ctx context.Context, w io.Writer, c *client.Client) error {
	ch, err := c.Events(ctx)
	if err != nil {
		return err
	}
	for e := range ch {
		payload := string(e.Payload)
		if s, err := e.Text(); err == nil {
			payload = errorStyle.Render(s)
		} else if b, err := e.Bool(); err == nil {
			payload = stateText(b)
		}
		_, _ = fmt.Fprintf(w, "%s  %-10s %s\n", e.At.Local().Format("15:04:05"), e.Name, payload)
	}
	return nil
}

func createConfigCommand(gf *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as TOML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := gf.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("config path required (argument or --config)")
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}, &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(gf.ConfigPath)
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	})
	return cmd
}

func addClientFlags(cmd *cobra.Command, f *ClientFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "bridge base URL (default: from config)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func newClient(gf *GlobalFlags, f *ClientFlags) (*client.Client, error) {
	url := f.APIUrl
	if url == "" {
		cfg, err := config.Load(gf.ConfigPath)
		if err != nil {
			return nil, err
		}
		if !cfg.Server.Enabled {
			return nil, fmt.Errorf("bridge is disabled in configuration; pass --api-url")
		}
		base := strings.TrimRight(cfg.Server.BasePath, "/")
		if base != "" && !strings.HasPrefix(base, "/") {
			base = "/" + base
		}
		url = "http://" + cfg.Server.Listen + base
	}
	return client.New(client.Config{BaseURL: url, Timeout: f.APITimeout}), nil
}
