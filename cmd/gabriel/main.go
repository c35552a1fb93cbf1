// Command gabriel collects publications from the configured sources and
// forwards them to the configured destinations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcomino/gabriel-messenger/internal/app"
	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules/builtin"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "gabriel",
		Short:         "Publication collector and fan-out messenger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to the config file (yaml or json)")
	root.AddCommand(runCommand(), checkCommand(), modulesCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and every module instance without starting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewManager(cfgPath).Load()
			if err != nil {
				return err
			}
			if err := app.Check(cfg, builtin.Registry()); err != nil {
				return err
			}
			var senders, receivers int
			for _, m := range cfg.Senders {
				senders += len(m.Instances)
			}
			for _, m := range cfg.Receivers {
				receivers += len(m.Instances)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d senders, %d receivers\n", senders, receivers)
			return nil
		},
	}
}

func modulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the available receiver and sender modules",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			reg := builtin.Registry()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "receivers:")
			for _, name := range reg.ReceiverNames() {
				fmt.Fprintln(out, "  "+name)
			}
			fmt.Fprintln(out, "senders:")
			for _, name := range reg.SenderNames() {
				fmt.Fprintln(out, "  "+name)
			}
		},
	}
}
