package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relaybot",
	Short: "Notification relay bot for member health alerts",
	Long: `Relaybot receives health alerts from a monitoring service, filters them
per recipient by subscription, severity, mute window and maintenance
mode, and delivers them over a Matrix chat transport. Recipients manage
their own subscriptions with chat commands.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "relaybot.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
