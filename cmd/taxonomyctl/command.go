package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// command is one taxonomyctl subcommand.
type command struct {
	// Flags holds command-specific flags. The FlagSet name is unused.
	Flags *flag.FlagSet

	// Usage is shown after "taxonomyctl" in help, e.g. "check [flags]".
	Usage string

	// Short is the one-line description for the global listing.
	Short string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, stdout io.Writer) error
}

// Name returns the first word of Usage.
func (c *command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the entry shown in the global usage listing.
func (c *command) HelpLine() string {
	return fmt.Sprintf("  %-18s %s", c.Usage, c.Short)
}

// PrintHelp prints "taxonomyctl <cmd> --help" output.
func (c *command) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: taxonomyctl", c.Usage)
	fmt.Fprintln(w)
	fmt.Fprintln(w, c.Short)

	if c.Flags != nil && c.Flags.HasFlags() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		fmt.Fprint(w, buf.String())
	}
}

// Run parses flags and executes the command, returning the exit code.
func (c *command) Run(ctx context.Context, stdout, stderr io.Writer, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(stdout)
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		fmt.Fprintln(stderr)
		c.PrintHelp(stderr)
		return 1
	}
	if extra := c.Flags.Args(); len(extra) > 0 {
		fmt.Fprintf(stderr, "error: unexpected argument %q\n", extra[0])
		return 1
	}

	if err := c.Exec(ctx, stdout); err != nil {
		if errors.Is(err, errUnhealthy) {
			return 2
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
