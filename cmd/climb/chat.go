package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/DrShushen/climb/internal/chat"
	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/factory"
	"github.com/DrShushen/climb/internal/sandbox"
	"github.com/DrShushen/climb/internal/session"
)

var (
	chatStdio     bool
	chatMaxCycles int
)

var chatCmd = &cobra.Command{
	Use:   "chat [session-key]",
	Short: "Continue a session (the active one by default)",
	Long: `Continue a research session in the terminal. With --stdio the engine
speaks NDJSON commands and events on stdin/stdout for a front end.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := app.Store(ctx)
		if err != nil {
			return err
		}
		key, err := sessionKey(ctx, store, args)
		if err != nil {
			return err
		}
		sess, err := store.GetSession(ctx, key)
		if err != nil {
			return err
		}
		runner := sandbox.NewDefaultRunner(ctx, app.cfg.Sandbox, app.log)
		guard := engine.NewTurnGuard()

		if chatStdio {
			srv := chat.NewStdioServer(cmd.InOrStdin(), cmd.OutOrStdout(), app.log)
			cs := chat.NewSession(key, guard, srv.Emit)
			cs.SetMaxCycles(chatMaxCycles)
			e, err := factory.CreateEngine(ctx, store, sess, app.cfg, app.reg, runner, app.log, cs.Hook())
			if err != nil {
				return err
			}
			cs.Attach(e)
			return srv.Serve(ctx, cs)
		}

		out := cmd.OutOrStdout()
		renderer := chat.NewTextRenderer(out)
		cs := chat.NewSession(key, guard, renderer.Emit)
		cs.SetMaxCycles(chatMaxCycles)
		e, err := factory.CreateEngine(ctx, store, sess, app.cfg, app.reg, runner, app.log, cs.Hook())
		if err != nil {
			return err
		}
		cs.Attach(e)

		fmt.Fprintf(out, "Session %s (%s). Type /help for commands.\n", sess.FriendlyName, sess.EngineName)
		printVisibleHistory(out, e.Messages())

		// Ctrl+C stops the running turn.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		defer signal.Stop(sigCh)
		chatCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			for {
				select {
				case <-chatCtx.Done():
					return
				case <-sigCh:
					if !cs.Running() {
						fmt.Fprintln(out, "\n(use /quit to leave)")
						continue
					}
					if err := cs.Cancel(chatCtx, "interrupted"); err != nil {
						app.log.Warn().Err(err).Msg("stop tool execution")
					}
				}
			}
		}()

		err = chat.RunInteractive(chatCtx, cs, cmd.InOrStdin(), out)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatStdio, "stdio", false, "serve NDJSON commands on stdin and events on stdout")
	chatCmd.Flags().IntVar(&chatMaxCycles, "max-cycles", engine.DefaultMaxCycles, "reasoning cycles allowed per turn")
}

func sessionKey(ctx context.Context, store session.Store, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	settings, err := store.GetUserSettings(ctx)
	if err != nil {
		return "", err
	}
	if settings.ActiveSession == "" {
		return "", errors.New("no active session; create one with \"climb sessions new\"")
	}
	return settings.ActiveSession, nil
}

func printVisibleHistory(out io.Writer, msgs []session.Message) {
	for _, m := range msgs {
		if m.Visibility != session.VisibilityAll && m.Visibility != session.VisibilityUIOnly {
			continue
		}
		if m.Content == "" {
			continue
		}
		who := string(m.Role)
		if m.Role == session.RoleAssistant && m.Agent != "" {
			who = m.Agent
		}
		fmt.Fprintf(out, "%s> %s\n", who, m.Content)
	}
}
