package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/recorder"
)

func NewScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "scan",
		Short:   "Scan for force sensors",
		GroupID: gDevices,
		Long: `Scan for nearby force sensors.

The daemon filters advertisements by the configured device name filter and
returns the matches sorted by name. Use the printed id with 'grip connect'.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			devices, err := apiClient.Scan()
			if err != nil {
				return fmt.Errorf("failed to scan: %v", err)
			}

			if len(devices) == 0 {
				fmt.Println("No force sensors found.")
				return nil
			}
			for _, d := range devices {
				fmt.Printf("%s  %s\n", color.CyanString(d.ID), d.Name)
			}
			return nil
		},
	}
}

func NewDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Short:   "Show the status of every device session",
		GroupID: gDevices,
		RunE: func(_ *cobra.Command, _ []string) error {
			statuses, err := apiClient.GetDevices()
			if err != nil {
				return fmt.Errorf("failed to list devices: %v", err)
			}

			if len(statuses) == 0 {
				fmt.Println("No device sessions. Connect one with 'grip connect <id>'.")
				return nil
			}
			for _, st := range statuses {
				state := color.GreenString(string(st.State))
				if st.LinkError {
					state = color.RedString("%s (link error)", st.State)
				} else if !st.Connected {
					state = color.YellowString(string(st.State))
				}
				fmt.Printf("%s  %-20s %s  baseline=%.3f  buffered=%d\n",
					color.CyanString(st.ID), st.Name, state, st.Baseline, st.Buffered)
			}
			return nil
		},
	}
}

func NewConnectCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:     "connect <device-id>",
		Short:   "Connect a force sensor",
		GroupID: gDevices,
		Long: `Connect a force sensor and run its baseline calibration.

The connection stays open until 'grip disconnect'. A few seconds after the
connection opens, the sensor is calibrated against its current zero-load
reading and the session becomes armed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := apiClient.Connect(args[0], name); err != nil {
				return fmt.Errorf("failed to connect: %v", err)
			}
			logrus.Infof("connected to %s, session armed", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "advertised device name, for labeling")

	return cmd
}

func NewDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "disconnect <device-id>",
		Short:   "Disconnect a force sensor",
		GroupID: gDevices,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := apiClient.Disconnect(args[0]); err != nil {
				return fmt.Errorf("failed to disconnect: %v", err)
			}
			logrus.Infof("disconnected %s", args[0])
			return nil
		},
	}
}

func metaFlags(cmd *cobra.Command, meta *recorder.Meta) {
	f := cmd.Flags()
	f.StringVar(&meta.AthleteID, "athlete", "", "athlete identifier used in the artifact path")
	f.Float64Var(&meta.DistanceCM, "distance", 0, "distance in cm used in the artifact name")
	f.IntVar(&meta.WeightKG, "weight", 0, "weight in kg used in the artifact name")
}

func NewStartCommand() *cobra.Command {
	var meta recorder.Meta

	cmd := &cobra.Command{
		Use:     "start <device-id>",
		Short:   "Start recording on a device",
		GroupID: gDevices,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := apiClient.Start(args[0], meta); err != nil {
				return fmt.Errorf("failed to start reading: %v", err)
			}
			logrus.Infof("recording on %s", args[0])
			return nil
		},
	}

	metaFlags(cmd, &meta)

	return cmd
}

func NewStopCommand() *cobra.Command {
	var meta recorder.Meta

	cmd := &cobra.Command{
		Use:     "stop <device-id>",
		Short:   "Stop recording and save the session",
		GroupID: gDevices,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := apiClient.Stop(args[0], meta)
			if err != nil {
				return fmt.Errorf("failed to stop reading: %v", err)
			}
			if path == "" {
				logrus.Info("recording stopped, nothing was buffered")
				return nil
			}
			logrus.Infof("recording stopped, session saved to %s", path)
			return nil
		},
	}

	metaFlags(cmd, &meta)

	return cmd
}
