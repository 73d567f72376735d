package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/filewatch/pkg/config"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	configPath string
}

// Execute runs the config command with given arguments.
func (c *configCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "show":
		return c.runShow(subargs)
	case "path":
		return c.runPath()
	case "reset":
		return c.runReset(subargs)
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown config subcommand: %s", subcommand)
	}
}

// runShow displays the effective configuration.
func (c *configCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	format := fs.String("format", "yaml", "output format (yaml, json)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}

	switch *format {
	case "json":
		return c.showJSON(cfg)
	case "yaml":
		return c.showYAML(cfg)
	default:
		return fmt.Errorf("unknown format: %s", *format)
	}
}

// showYAML displays configuration in YAML format.
func (c *configCommand) showYAML(cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Println("# Current Configuration")
	fmt.Println("# Source:", c.configSource())
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

// showJSON displays configuration in JSON format.
func (c *configCommand) showJSON(cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

// runPath shows the configuration file search paths.
func (c *configCommand) runPath() error {
	fmt.Println("Configuration file search paths (in order of precedence):")
	fmt.Println()

	for i, p := range searchPaths(c.configPath) {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Printf("  %d. %s [%s]\n", i+1, p, exists)
	}

	fmt.Println()
	fmt.Println("Active configuration:", c.configSource())
	return nil
}

// runReset writes the default configuration to a file.
func (c *configCommand) runReset(args []string) error {
	fs := flag.NewFlagSet("config reset", flag.ContinueOnError)
	force := fs.Bool("force", false, "skip confirmation prompt")
	output := fs.String("output", "", "output path for config file (default: ~/.config/filewatch/config.yaml)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	outputPath := *output
	if outputPath == "" {
		outputPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(outputPath); err == nil && !*force {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("%s already exists; use -force to overwrite", outputPath)
		}
		if !confirm(fmt.Sprintf("Configuration file already exists at: %s\nOverwrite? [y/N]: ", outputPath)) {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	if err := config.Save(config.Default(), outputPath); err != nil {
		return err
	}

	fmt.Printf("Configuration reset to defaults at: %s\n", outputPath)
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		fmt.Println()
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// searchPaths lists the config files Load considers, in order.
func searchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	return []string{"./filewatch.yaml", config.DefaultConfigPath()}
}

// configSource returns the path of the active configuration file.
func (c *configCommand) configSource() string {
	if p := config.NewLoader(c.configPath).Path(); p != "" {
		return p
	}
	return "defaults (no config file found)"
}

// showHelp displays help for config command.
func (c *configCommand) showHelp() error {
	help := `Config - Configuration management

Usage:
  filewatch config <subcommand> [flags]

Subcommands:
  show      Display the effective configuration
  path      Show configuration file paths
  reset     Write the default configuration

Show Flags:
  -format   Output format (yaml, json) (default: yaml)

Reset Flags:
  -force    Skip confirmation prompt
  -output   Output path for config file

Environment:
  FILEWATCH_ADDR, FILEWATCH_ROOT, FILEWATCH_IDLE_TIMEOUT,
  FILEWATCH_HISTORY_DB and FILEWATCH_LOG_LEVEL override the file.

Examples:
  # Show current configuration
  filewatch config show

  # Show configuration in JSON format
  filewatch config show -format json

  # Reset without confirmation
  filewatch config reset -force
`
	fmt.Print(help)
	return nil
}
