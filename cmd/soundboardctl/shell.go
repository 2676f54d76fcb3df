package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newShellCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive prompt; every line is sent as a key gesture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(o)
		},
	}
}

func runShell(o *options) error {
	if _, err := o.connect(); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "soundboard> ",
		AutoComplete:    shellCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	socketPath := o.socketPath
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintln(rl.Stderr(), "Error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}
		if args[0] == "shell" {
			continue
		}

		// A fresh tree per line keeps flag state from leaking between commands
		root := newRootCmd(o)
		root.SetArgs(append(args, "--socket", socketPath, "--gesture", "key"))
		root.SetOut(rl.Stdout())
		if err := root.Execute(); err != nil {
			fmt.Fprintln(rl.Stderr(), "Error:", err)
		}
	}
}

func shellCompleter() *readline.PrefixCompleter {
	onOff := []readline.PrefixCompleterInterface{readline.PcItem("on"), readline.PcItem("off")}
	return readline.NewPrefixCompleter(
		readline.PcItem("status"),
		readline.PcItem("view"),
		readline.PcItem("select"),
		readline.PcItem("track"),
		readline.PcItem("play"),
		readline.PcItem("pause"),
		readline.PcItem("toggle"),
		readline.PcItem("stop"),
		readline.PcItem("skip"),
		readline.PcItem("restart"),
		readline.PcItem("seek"),
		readline.PcItem("volume"),
		readline.PcItem("mute", onOff...),
		readline.PcItem("loop", onOff...),
		readline.PcItem("shuffle", onOff...),
		readline.PcItem("sfx"),
		readline.PcItem("sfx-stop"),
		readline.PcItem("sfx-status"),
		readline.PcItem("sfx-volume"),
		readline.PcItem("exit"),
	)
}

// splitArgs splits a shell line on whitespace. Double or single quotes group
// words, so filenames with spaces can be typed.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		inToken bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args, nil
}
