// Package main is soundboardctl, a command-line client for soundboardd.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/soundboardd/internal/ipc"
)

const dialTimeout = 2 * time.Second

type options struct {
	socketPath string
	gesture    string
	client     *ipc.Client
}

func defaultSocketPath() string {
	return fmt.Sprintf("/tmp/soundboardd-%d.sock", os.Getuid())
}

// connect dials lazily so that help and completion work without a daemon
func (o *options) connect() (*ipc.Client, error) {
	if o.client != nil {
		return o.client, nil
	}
	c, err := ipc.Dial(o.socketPath, dialTimeout)
	if err != nil {
		return nil, err
	}
	o.client = c
	return c, nil
}

func (o *options) call(cmd *cobra.Command, command ipc.CommandType, data interface{}) error {
	c, err := o.connect()
	if err != nil {
		return err
	}
	resp, err := c.Call(command, o.gesture, data)
	if err != nil {
		return err
	}
	return printData(cmd, resp.Data)
}

func printData(cmd *cobra.Command, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return nil
}

// simple builds a command that takes no arguments
func (o *options) simple(use, short string, command ipc.CommandType) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.call(cmd, command, nil)
		},
	}
}

func (o *options) withFloat(use, short string, command ipc.CommandType, wrap func(float64) interface{}) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", args[0])
			}
			return o.call(cmd, command, wrap(v))
		},
	}
}

// toggle builds an on/off command; without an argument the setting flips
func (o *options) toggle(use, short string, command ipc.CommandType) *cobra.Command {
	return &cobra.Command{
		Use:       use + " [on|off]",
		Short:     short,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.ToggleRequest{}
			if len(args) == 1 {
				enabled, err := parseOnOff(args[0])
				if err != nil {
					return err
				}
				req.Enabled = &enabled
			}
			return o.call(cmd, command, req)
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "soundboardctl",
		Short:         "Control the soundboard daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.socketPath, "socket", defaultSocketPath(), "IPC socket path")
	root.PersistentFlags().StringVar(&o.gesture, "gesture", "key", "Gesture reported with each command (empty for none)")

	seek := func(v float64) interface{} { return ipc.SeekRequest{Position: v} }
	volume := func(v float64) interface{} { return ipc.VolumeRequest{Level: v} }

	root.AddCommand(
		o.simple("status", "Show the transport status", ipc.CmdStatus),
		&cobra.Command{
			Use:   "view [filter]",
			Short: "Show the board as clients render it",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				req := ipc.ViewRequest{}
				if len(args) == 1 {
					req.Filter = args[0]
				}
				return o.call(cmd, ipc.CmdView, req)
			},
		},
		&cobra.Command{
			Use:   "select <filename>",
			Short: "Load a music track without starting it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.call(cmd, ipc.CmdSelectTrack, ipc.TrackRequest{Filename: args[0]})
			},
		},
		&cobra.Command{
			Use:   "track <filename>",
			Short: "Play a music track, or stop it if it is playing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.call(cmd, ipc.CmdToggleTrack, ipc.TrackRequest{Filename: args[0]})
			},
		},
		o.simple("play", "Resume music", ipc.CmdPlay),
		o.simple("pause", "Pause music", ipc.CmdPause),
		o.simple("toggle", "Toggle music pause", ipc.CmdTogglePause),
		o.simple("stop", "Stop music and clear the track", ipc.CmdStop),
		o.simple("skip", "Skip to the next track", ipc.CmdSkip),
		o.simple("restart", "Restart the current track", ipc.CmdRestart),
		o.withFloat("seek <seconds>", "Seek the current track", ipc.CmdSeek, seek),
		o.withFloat("volume <level>", "Set the music volume (0-1)", ipc.CmdVolume, volume),
		o.toggle("mute", "Mute or unmute music", ipc.CmdMute),
		o.toggle("loop", "Loop the current track", ipc.CmdLoop),
		o.toggle("shuffle", "Shuffle the music", ipc.CmdShuffle),
		&cobra.Command{
			Use:   "sfx <key>",
			Short: "Play a sound effect, or stop it if it is playing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.call(cmd, ipc.CmdSfxTrigger, ipc.SfxRequest{Key: args[0]})
			},
		},
		o.simple("sfx-stop", "Stop every sound effect", ipc.CmdSfxStopAll),
		o.simple("sfx-status", "Show playing sound effects", ipc.CmdSfxStatus),
		o.withFloat("sfx-volume <level>", "Set the sound-effects volume (0-1)", ipc.CmdSfxVolume, volume),
		&cobra.Command{
			Use:   "watch",
			Short: "Print status pushes until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := o.connect()
				if err != nil {
					return err
				}
				return c.Subscribe(func(msg ipc.PushMessage) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", msg.Type, msg.Data)
				})
			},
		},
		newShellCmd(o),
	)
	return root
}

func main() {
	o := &options{}
	err := newRootCmd(o).Execute()
	if o.client != nil {
		o.client.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
