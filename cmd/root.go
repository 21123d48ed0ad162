package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pme-sh/lrpc/config"
	"github.com/pme-sh/lrpc/revision"
	"github.com/pme-sh/lrpc/xlog"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

func refGroup(id, name string) string {
	if !config.RootCommand.ContainsGroup(id) {
		config.RootCommand.AddGroup(&cobra.Group{
			ID:    id,
			Title: name + ":",
		})
	}
	return id
}

// setupLogging applies the global logging flags.
func setupLogging() error {
	if *config.Verbose {
		xlog.SetLoggerLevel(xlog.LevelDebug)
	} else {
		xlog.SetLoggerLevel(xlog.LevelInfo)
	}
	if *config.LogFile != "" {
		f, err := xlog.FileWriter(*config.LogFile)
		if err != nil {
			return err
		}
		xlog.SetDefaultOutput(xlog.StderrWriter(), f)
	}
	return nil
}

func init() {
	config.RootCommand.PersistentPreRunE = func(*cobra.Command, []string) error {
		return setupLogging()
	}
	config.RootCommand.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(revision.GetVersion())
		},
	})
}

func Execute() {
	if runtime.GOMAXPROCS(0) > 32 {
		runtime.GOMAXPROCS(32)
	}
	maxprocs.Set()
	config.RootCommand.Short += " (" + revision.GetVersion() + ")"
	if err := config.RootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
