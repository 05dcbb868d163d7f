package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

const version = "1.0.0"

// app holds global options parsed from the command line
type app struct {
	account string
	verbose bool
	logger  zerolog.Logger
}

func main() {
	a := &app{}

	// Global flags
	flag.StringVar(&a.account, "account", "", "Account name or email to use")
	flag.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printUsage
	flag.SetInterspersed(false)
	flag.Parse()

	if *showVersion {
		fmt.Printf("emx-compose v%s\n", version)
		os.Exit(0)
	}

	a.logger = newLogger(a.verbose)

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "init":
		if err := handleInit(os.Stdout); err != nil {
			fatal("init: %v", err)
		}
	case "send":
		opts := parseSendFlags(cmdArgs)
		acc := a.loadAccount()
		if err := a.handleSend(acc, opts); err != nil {
			fatal("send: %v", err)
		}
	case "help":
		printUsage()
		os.Exit(0)
	default:
		fatal("unknown command '%s'", cmd)
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `emx-compose v%s - Compose and send email

Usage:
  emx-compose [global options] <command> [command options]

Commands:
  send       Build and send an email
  init       Print or create an example configuration
  help       Show this help

Global Options:
  --account <name>   Account name or email to use
  -v, --verbose      Verbose output
  --version          Show version information

Config Resolution:
  1) If emx-config exists: emx-compose reads config via emx-config list --json.
  2) Otherwise: set EMX_COMPOSE_CONFIG to a JSON or YAML (.yaml/.yml) file.

Send Options:
  --to <emails>             Recipients (comma-separated)
  --cc <emails>             CC recipients (comma-separated)
  --bcc <emails>            BCC recipients (comma-separated)
  --reply-to <email>        Reply-To address (overrides the account's)
  --subject <text>          Email subject
  --text <text>             Message body
  --text-file <path>        Message body from file ("-" for stdin)
  --content-type <type>     Content type of the body (default: text/plain)
  --charset <name>          Body charset (default: account charset or utf-8)
  --header "Name: value"    Extra header (repeatable)
  --attachment <path>       Attachment file path (repeatable)
  --mbox <path>             Append the sent message to an mbox file
  --save-sent               Save a copy to the IMAP Sent folder
  --dry-run                 Print the rendered message without sending

Examples:
  emx-compose init
  emx-compose send --to user@example.com --subject "Hello" --text "Hi!"
  emx-compose -v send --to a@example.com --bcc b@example.com \
      --text-file notes.txt --attachment report.pdf --save-sent
  emx-compose send --to user@example.com --text "<b>Hi</b>" \
      --content-type text/html --dry-run
`, version)
}
