package cli

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DataDir string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "mailherald",
	Short: "MailHerald - Gmail to Telegram notification bridge",
	Long: `MailHerald watches authorized Gmail inboxes and forwards new unread
mail to Telegram chats, optionally summarized by a local Ollama model.

Users are onboarded over Telegram: they send their email address, the
operator approves with /grant, and the OAuth device flow runs without
any browser redirect on the server.

Usage:
  mailherald [command] [flags]

Available Commands:
  serve      Start the MailHerald service (main mode)
  users      List authorized users
  version    Print version information

Flags:
  --config string     Path to configuration file (default "config.yaml")
  --data-dir string   Path to the flat-file data directory (overrides config)
  --verbose           Enable verbose output
  --json              Output in JSON format

Use "mailherald [command] --help" for more information about a command.`,
}

var globalFlags GlobalFlags

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv("MAILHERALD_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DataDir, "data-dir", os.Getenv("MAILHERALD_DATA_DIR"), "Path to the flat-file data directory")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of MailHerald",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

func printVersion() {
	info := GetVersionInfo()
	println("MailHerald Version:", info.Version)
	println("Go Version:", info.GoVersion)
	println("OS/Arch:", info.OS+"/"+info.Arch)
}
