package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	var autoSave bool

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Watch session state changes and answer save prompts",
		GroupID: gDevices,
		Long: `Watch the daemon's event stream.

State changes are printed as they happen. When a sensor drops its link with
unsaved data, the daemon asks whether to keep it; this command prompts on the
terminal and relays the answer. If nobody answers before the daemon's prompt
timeout, the data is saved.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ch, err := apiClient.Events(ctx)
			if err != nil {
				return fmt.Errorf("failed to open event stream: %v", err)
			}

			fmt.Println("Watching session events. Ctrl-C to stop.")
			stdin := bufio.NewReader(os.Stdin)

			for ev := range ch {
				switch ev.Name {
				case events.SessionState:
					st, err := events.DecodeAs[events.SessionStateEvent](ev)
					if err != nil {
						continue
					}
					printState(st)
				case events.SessionPrompt:
					p, err := events.DecodeAs[events.SessionPromptEvent](ev)
					if err != nil {
						continue
					}
					answerPrompt(p, stdin, autoSave)
				case events.SessionSaved:
					s, err := events.DecodeAs[events.SessionSavedEvent](ev)
					if err != nil {
						continue
					}
					fmt.Printf("%s %s: %d samples -> %s\n",
						color.GreenString("saved"), s.ID, s.Rows, s.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoSave, "auto-save", false,
		"answer every save prompt with yes instead of asking")

	return cmd
}

func printState(st events.SessionStateEvent) {
	label := color.GreenString(st.State)
	if st.LinkError {
		label = color.RedString("%s (link error)", st.State)
	} else if !st.Connected {
		label = color.YellowString(st.State)
	}
	name := st.Name
	if name == "" {
		name = st.ID
	}
	fmt.Printf("%s -> %s\n", name, label)
}

func answerPrompt(p events.SessionPromptEvent, stdin *bufio.Reader, autoSave bool) {
	name := p.Name
	if name == "" {
		name = p.ID
	}

	save := true
	if autoSave {
		fmt.Printf("%s dropped with %d unsaved samples, auto-saving\n",
			name, p.Samples)
	} else {
		fmt.Printf("%s dropped with %d unsaved samples. Keep them? [Y/n] ",
			name, p.Samples)
		line, err := stdin.ReadString('\n')
		if err == nil {
			answer := strings.ToLower(strings.TrimSpace(line))
			save = answer != "n" && answer != "no"
		}
	}

	if err := apiClient.AnswerSavePrompt(p.ID, save); err != nil {
		logrus.WithError(err).Warn("failed to answer save prompt")
	}
}
