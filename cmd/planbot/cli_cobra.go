package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "planbot",
		Short: "Personal planner bot for Discord with scheduled reminders",
		Long: strings.TrimSpace(`planbot keeps a plain-text planner per user and talks to it through
a button-driven conversation on Discord or in the terminal.

Use CLI commands to onboard, run the Discord gateway with its reminder
scheduler, chat locally, and sort or export a user's planner.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&configPathOverride, "config", "c", "", "Config file (default ~/.planbot/config.json, or $PLANBOT_CONFIG)")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newSortCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newSessionCommand())
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.planbot config and data directory",
		Long:    "Write the default configuration and create the data directory for a new planbot installation.",
		Example: "  planbot onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Run the Discord bot, reminder scheduler, and health server",
		Long:    "Connect to Discord, run the conversation engine and the reminder cadences, and serve /health, /ready and /metrics.",
		Example: "  planbot gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gatewayCmd(debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newChatCommand() *cobra.Command {
	var (
		user          string
		debug         bool
		withScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the planner in the terminal (no Discord)",
		Long:  "Run the same conversation as the Discord bot against a local terminal user. Menu buttons are pressed by typing their label or /N.",
		Example: strings.Join([]string{
			"  planbot chat",
			"  planbot chat --user 123456789",
			"  planbot chat --with-scheduler --debug",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return chatCmd(strings.TrimSpace(user), debug, withScheduler)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "local", "User id whose planner to use")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the reminder scheduler, delivering to the terminal")

	return cmd
}

func newSortCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:     "sort",
		Short:   "Sort a user's planner chronologically",
		Long:    "Rewrite the user's event file in time order. Lines without a leading timestamp are kept at the end.",
		Example: "  planbot sort --user 123456789",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sortCmd(user, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id whose planner to sort")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		user string
		out  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's planner as iCalendar",
		Long:  "Write the user's events as an .ics calendar, to a file or to standard output.",
		Example: strings.Join([]string{
			"  planbot export --user 123456789",
			"  planbot export --user 123456789 --out planner.ics",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportCmd(user, strings.TrimSpace(out), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id whose planner to export")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, storage, and gateway readiness",
		Example: "  planbot status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd(cmd.OutOrStdout())
		},
	}
}

func newSessionCommand() *cobra.Command {
	var (
		user  string
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or reset a user's conversation state",
		Long:  "Print the user's conversation state and flow scratch data. With --reset, send the user back to the main menu first.",
		Example: strings.Join([]string{
			"  planbot session --user 123456789",
			"  planbot session --user 123456789 --reset",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionCmd(strings.TrimSpace(user), reset, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id whose session to show")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the scratch data and return to the main menu")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  planbot version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
