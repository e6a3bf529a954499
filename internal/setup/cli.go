package setup

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// CLI implements the "setup" subcommand of the server binaries.
type CLI struct {
	ServerType string // "lite" or "full"
	ConfigPath string // empty selects DefaultClientConfigPath

	reader *bufio.Reader
	out    io.Writer
}

// NewCLI creates a setup CLI reading confirmations from in.
func NewCLI(serverType string, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		ServerType: serverType,
		reader:     bufio.NewReader(in),
		out:        out,
	}
}

// Run dispatches args to a setup command.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		c.showHelp()
		return nil
	}

	switch args[0] {
	case "register":
		return c.register(args[1:])
	case "status":
		return c.showStatus()
	case "help", "--help", "-h":
		c.showHelp()
		return nil
	default:
		c.showHelp()
		return fmt.Errorf("unknown setup command: %s", args[0])
	}
}

func (c *CLI) showHelp() {
	fmt.Fprint(c.out, `Tox signal MCP server setup

Usage:
  mcp-server-lite setup <command> [options]

Commands:
  register   Add the server to the desktop client configuration
  status     Show the current registration

Register options:
  -binary string      server binary (default: this executable)
  -data-dir string    data directory for the override database
  -study-url string   study data service base URL
  -y                  do not ask for confirmation
`)
}

func (c *CLI) configPath() (string, error) {
	if c.ConfigPath != "" {
		return c.ConfigPath, nil
	}
	return DefaultClientConfigPath()
}

func (c *CLI) register(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(c.out)
	opts := Options{ServerType: c.ServerType}
	fs.StringVar(&opts.BinaryPath, "binary", "", "server binary")
	fs.StringVar(&opts.DataDir, "data-dir", "", "data directory")
	fs.StringVar(&opts.StudyDataURL, "study-url", "", "study data service base URL")
	autoConfirm := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.BinaryPath == "" {
		if execPath, err := os.Executable(); err == nil {
			opts.BinaryPath = execPath
		}
	}

	path, err := c.configPath()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config file:   %s\n", path)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	if opts.DataDir != "" {
		fmt.Fprintf(c.out, "Data dir:      %s\n", opts.DataDir)
	}

	if !*autoConfirm {
		fmt.Fprint(c.out, "Proceed? [Y/n]: ")
		response, _ := c.reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			fmt.Fprintln(c.out, "Registration cancelled.")
			return nil
		}
	}

	if _, err := Register(path, opts); err != nil {
		return fmt.Errorf("failed to register server: %w", err)
	}

	fmt.Fprintf(c.out, "Registered %q. Restart the client to load it.\n", ServerKey)
	return nil
}

func (c *CLI) showStatus() error {
	path, err := c.configPath()
	if err != nil {
		return err
	}
	status, err := GetStatus(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config file: %s\n", status.ConfigPath)
	fmt.Fprintf(c.out, "Registered:  %s\n", mark(status.Registered))
	if status.Registered {
		fmt.Fprintf(c.out, "Binary:      %s (%s)\n", status.BinaryPath, found(status.BinaryFound))
	}
	fmt.Fprintf(c.out, "Data dir:    %s (%s)\n", status.DataDir, found(status.DataDirFound))
	fmt.Fprintf(c.out, "Override DB: %s\n", found(status.OverridesDB))

	for _, issue := range status.Issues {
		fmt.Fprintf(c.out, "  ! %s\n", issue)
	}
	if !status.Ready() {
		return fmt.Errorf("setup incomplete")
	}
	return nil
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func found(ok bool) string {
	if ok {
		return "found"
	}
	return "missing"
}
