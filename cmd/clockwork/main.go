package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clockwork",
		Short:         "Run scheduled applications on a clockwork runtime.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), checkCmd(), appsCmd())
	return root
}

func runCmd() *cobra.Command {
	var (
		cfgPath string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:       "run <app>",
		Short:     "Runs an application until it stops.",
		Long:      `Runs an application from a config file. With --watch the app is restarted whenever the file changes to a new valid config.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: appNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := lookupApp(args[0])
			if err != nil {
				return err
			}
			if !watch {
				// The host handles SIGINT/SIGTERM itself when runtime.enable_io is set.
				return app.run(cmd.Context(), cfgPath)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return app.watch(ctx, cfgPath)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&cfgPath, "config", "c", "./clockwork.toml", "path to config file (toml, yaml or json)")
	flags.BoolVarP(&watch, "watch", "w", false, "restart the app when the config file changes")
	return cmd
}

func checkCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:       "check <app>",
		Short:     "Validates a config file without running anything.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: appNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := lookupApp(args[0])
			if err != nil {
				return err
			}
			summary, err := app.check(cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s)\n", cfgPath, summary)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "./clockwork.toml", "path to config file (toml, yaml or json)")
	return cmd
}

func appsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "Lists the applications this binary can run.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range appNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func lookupApp(name string) (appKind, error) {
	app, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown app %q (available: %s)", name, strings.Join(appNames(), ", "))
	}
	return app, nil
}

func appNames() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
