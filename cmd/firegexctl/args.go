package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	firegex "github.com/pwnzer0tt1/firegexctl"
	"github.com/pwnzer0tt1/firegexctl/secret"
)

const defaultHistoryLimit = 20

// cliArgs is the parsed command line.
type cliArgs struct {
	// Invocation is nil for the history command.
	Invocation   firegex.Invocation
	History      bool
	HistoryLimit int
	Verbose      bool
	ConfigPath   string
}

var errUsage = errors.New("usage")

type globalFlags struct {
	clear   bool
	verbose bool
	config  string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&g.clear, "clear", false, "Delete the firegex volume, resetting all settings")
	fs.BoolVar(&g.verbose, "verbose", false, "Enable debug logging")
	fs.StringVar(&g.config, "config", "", "Configuration file (default $FIREGEX_HOME/config.yaml)")
}

// parseArgs turns the process arguments into a cliArgs. It returns
// flag.ErrHelp after printing help, and wraps errUsage for bad input.
func parseArgs(args []string, stdout io.Writer) (cliArgs, error) {
	var g globalFlags
	gfs := flag.NewFlagSet("firegexctl", flag.ContinueOnError)
	gfs.SetOutput(io.Discard)
	gfs.Usage = func() {}
	g.register(gfs)

	if err := gfs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return cliArgs{}, err
		}
		// Start flags given without the start command.
		return parseStart(args, stdout, &g, true)
	}

	rest := gfs.Args()
	if len(rest) == 0 {
		if g.clear {
			return g.wrap(firegex.ClearVolume{}), nil
		}
		return g.wrap(firegex.Start{}), nil
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if g.clear && cmd != "stop" {
		return cliArgs{}, fmt.Errorf("%w: --clear cannot be combined with %s", errUsage, cmd)
	}

	switch cmd {
	case "start":
		return parseStart(cmdArgs, stdout, &g, false)
	case "stop":
		return parseStop(cmdArgs, stdout, &g)
	case "restart":
		return parseRestart(cmdArgs, stdout, &g)
	case "compose":
		return g.wrap(firegex.Passthrough{Args: cmdArgs}), nil
	case "history":
		return parseHistory(cmdArgs, stdout, &g)
	case "help":
		printUsage(stdout)
		return cliArgs{}, flag.ErrHelp
	default:
		return cliArgs{}, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (g *globalFlags) wrap(inv firegex.Invocation) cliArgs {
	return cliArgs{Invocation: inv, Verbose: g.verbose, ConfigPath: g.config}
}

// commandFlags is a subcommand flag set with its help text. The flag
// package's own usage output is silenced; help is printed on request only.
type commandFlags struct {
	*flag.FlagSet
	stdout io.Writer
	usage  string
}

func newFlagSet(name string, stdout io.Writer, usage string) *commandFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return &commandFlags{FlagSet: fs, stdout: stdout, usage: usage}
}

func (c *commandFlags) printHelp() {
	fmt.Fprintln(c.stdout, c.usage)
	c.SetOutput(c.stdout)
	c.PrintDefaults()
	c.SetOutput(io.Discard)
}

func parseFlags(fs *commandFlags, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.printHelp()
			return err
		}
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s: unexpected argument %q", errUsage, fs.Name(), fs.Arg(0))
	}
	return nil
}

// parseStart parses the start flags. withGlobals also accepts the global
// flags, for start run as the default command.
func parseStart(args []string, stdout io.Writer, g *globalFlags, withGlobals bool) (cliArgs, error) {
	fs := newFlagSet("start", stdout, `Usage: firegexctl start [options]

Start the firewall.

Options:`)
	if withGlobals {
		g.register(fs.FlagSet)
	}

	var (
		threads, port       int
		psw, version        string
		pswOnWeb, followLog bool
	)
	fs.IntVar(&threads, "threads", 0, "Number of threads started for each service/utility (default: CPU count)")
	fs.IntVar(&threads, "t", 0, "Shorthand for --threads")
	fs.StringVar(&psw, "startup-psw", "", "Password set at startup")
	fs.StringVar(&psw, "P", "", "Shorthand for --startup-psw")
	fs.BoolVar(&pswOnWeb, "psw-on-web", false, "Set the password on the web interface")
	fs.IntVar(&port, "port", 0, "Port of the web interface (default 4444)")
	fs.IntVar(&port, "p", 0, "Shorthand for --port")
	fs.BoolVar(&followLog, "logs", false, "Follow firegex logs after starting")
	fs.StringVar(&version, "version", "", "Version of the firegex image (default latest)")
	fs.StringVar(&version, "v", "", "Shorthand for --version")

	if err := parseFlags(fs, args); err != nil {
		return cliArgs{}, err
	}
	if g.clear {
		return cliArgs{}, fmt.Errorf("%w: --clear cannot be combined with start", errUsage)
	}
	if port > 65535 {
		return cliArgs{}, fmt.Errorf("%w: port %d out of range", errUsage, port)
	}

	inv := firegex.Start{
		Version:    version,
		FollowLogs: followLog,
	}
	if port > 0 {
		inv.Port = uint16(port)
	}
	if threads > 0 {
		inv.Threads = uint32(threads)
	}
	switch {
	case pswOnWeb:
		inv.Secret = secret.Source{Mode: secret.ModeOnWeb}
	case psw != "":
		inv.Secret = secret.Source{Mode: secret.ModeProvided, Value: psw}
	default:
		inv.Secret = secret.Source{Mode: secret.ModePrompt}
	}
	return g.wrap(inv), nil
}

func parseStop(args []string, stdout io.Writer, g *globalFlags) (cliArgs, error) {
	fs := newFlagSet("stop", stdout, `Usage: firegexctl stop [options]

Stop the firewall.

Options:`)
	var clearData bool
	fs.BoolVar(&clearData, "clear", false, "Also delete the firegex volume, resetting all settings")
	if err := parseFlags(fs, args); err != nil {
		return cliArgs{}, err
	}
	return g.wrap(firegex.Stop{Clear: clearData || g.clear}), nil
}

func parseRestart(args []string, stdout io.Writer, g *globalFlags) (cliArgs, error) {
	fs := newFlagSet("restart", stdout, `Usage: firegexctl restart [options]

Restart the firewall.

Options:`)
	var followLog bool
	fs.BoolVar(&followLog, "logs", false, "Follow firegex logs after restarting")
	if err := parseFlags(fs, args); err != nil {
		return cliArgs{}, err
	}
	return g.wrap(firegex.Restart{FollowLogs: followLog}), nil
}

func parseHistory(args []string, stdout io.Writer, g *globalFlags) (cliArgs, error) {
	fs := newFlagSet("history", stdout, `Usage: firegexctl history [options]

Show recent firegexctl commands.

Options:`)
	var limit int
	fs.IntVar(&limit, "limit", defaultHistoryLimit, "Number of entries to show")
	if err := parseFlags(fs, args); err != nil {
		return cliArgs{}, err
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	return cliArgs{History: true, HistoryLimit: limit, Verbose: g.verbose, ConfigPath: g.config}, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `firegexctl - Firegex deployment manager

Usage:
  firegexctl [--clear] [--verbose] [--config FILE] [command] [options]

Commands:
  start     Start the firewall (default when no command is given)
  stop      Stop the firewall
  restart   Restart the firewall
  compose   Run a docker compose command on the firegex project
  history   Show recent firegexctl commands
  help      Show this help message

Global options:
  --clear          Delete the firegex volume, resetting all settings
  --verbose        Enable debug logging
  --config FILE    Configuration file

Examples:
  firegexctl start --port 4444 --logs
  firegexctl stop --clear
  firegexctl compose ps
  firegexctl --clear

Run 'firegexctl <command> --help' for more information on a command.`)
}
