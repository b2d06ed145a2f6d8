package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/ch579-flasher/internal/ch579"
	"github.com/bigbag/ch579-flasher/internal/target"
)

// parseMonitorLine joins the monitor arguments and splits them again with
// shell quoting rules, so both `monitor a b` and `monitor "a b"` work.
func parseMonitorLine(args []string) (string, []string, error) {
	words, err := shellwords.Parse(strings.Join(args, " "))
	if err != nil {
		return "", nil, fmt.Errorf("monitor: %w", err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("monitor: empty command")
	}
	return words[0], words[1:], nil
}

func printCommands(w io.Writer, commands []target.Command) {
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-20s %s\n", c.Name, c.Help)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	name, rest, err := parseMonitorLine(args)
	if err != nil {
		return err
	}

	opts, err := driverOptions()
	if err != nil && name != "help" {
		return err
	}
	if name == "help" {
		printCommands(os.Stdout, ch579.Commands(opts))
		return nil
	}

	spinner := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Waiting for flash controller"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	opts.Progress = func() { spinner.Add(1) }

	s, err := connect(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	err = s.Registration.RunCommand(ctx, s.Target, name, rest)
	spinner.Finish()
	if err != nil {
		return err
	}
	okColor.Printf("%s: done\n", name)
	return nil
}
