package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"tickerwatch/pkg/config"
	"tickerwatch/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage tickerwatch configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (TICKERWATCH_*)
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to 'tickerwatch.yaml' in the current directory unless a
different path is given with --config.`,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# tickerwatch configuration
#
# Every option can also be set with a TICKERWATCH_ environment variable,
# for example TICKERWATCH_SOURCES=jimcramer,unusual_whales

# Profile handles to harvest, in visiting order
sources:
  - jimcramer
  - unusual_whales

schedule:
  # Pause between the end of one run and the start of the next
  interval: 1h
  # Sources harvested at once, 1-8
  concurrency: 1
  # skip: a failed source is left out of the tally
  # abort: the first failure ends the run without a report
  failure_policy: skip

renderer:
  # chromium, firefox or webkit
  browser: chromium
  headless: true
  base_url: https://x.com
  user_agent: ""
  # 0 waits for the network to go idle without a limit
  navigation_timeout: 0s
  # Download browser binaries on first start
  install_browsers: false

scroll:
  step_px: 100
  tick_interval: 100ms
  settle_delay: 2s
  # At least one bound is required for feeds that never stop growing
  max_iterations: 200
  max_duration: 10m
  fail_on_forced_stop: false

harvest:
  article_selector: article
  readiness_timeout: 30s
  navigation_attempts: 1
  retry_delay: 5s

extract:
  pattern: '\$\w{3,4}'

report:
  # log or table
  format: log

metrics:
  enabled: false
  address: ":9090"
  path: /metrics

logging:
  # debug, info, warn, error
  level: info
  file: ""
  no_color: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "tickerwatch.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "1. Edit the sources list")
	fmt.Fprintln(cmd.OutOrStdout(), "2. Run 'tickerwatch config validate' to check the configuration")
	fmt.Fprintln(cmd.OutOrStdout(), "3. Start watching with 'tickerwatch run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return errors.New("no configuration file found, specify one with --config")
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}

	if len(cfg.Sources) == 0 {
		ui.PrintWarning("No sources configured")
	}

	ui.PrintSuccess("Configuration is valid")
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nConfiguration summary:")
	fmt.Fprintf(out, "  Sources: %d\n", len(cfg.Sources))
	fmt.Fprintf(out, "  Interval: %s\n", cfg.Schedule.Interval)
	fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Schedule.Concurrency)
	fmt.Fprintf(out, "  Failure policy: %s\n", cfg.Schedule.FailurePolicy)
	fmt.Fprintf(out, "  Browser: %s (headless: %t)\n", cfg.Renderer.Browser, cfg.Renderer.Headless)
	fmt.Fprintf(out, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
