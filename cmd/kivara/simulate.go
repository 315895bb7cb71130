package main

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kivara1314/kivara/internal/signal"
)

type simulateOptions struct {
	fs       int
	duration time.Duration
	hr       float64
	stress   float64
	noise    bool
	seed     int64
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic PPG waveform as CSV (t,value)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.fs <= 0 {
				return fmt.Errorf("--fs must be positive")
			}
			sim := signal.NewPPGSim(float64(opts.fs), opts.hr, opts.stress, opts.noise, opts.seed)
			samples := sim.Simulate(opts.duration.Seconds())

			w := csv.NewWriter(cmd.OutOrStdout())
			if err := w.Write([]string{"t", "value"}); err != nil {
				return err
			}
			for i, v := range samples {
				t := float64(i) / float64(opts.fs)
				if err := w.Write([]string{
					strconv.FormatFloat(t, 'f', 3, 64),
					strconv.FormatFloat(v, 'f', 6, 64),
				}); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}
	cmd.Flags().IntVar(&opts.fs, "fs", 100, "sampling rate Hz")
	cmd.Flags().DurationVar(&opts.duration, "duration", 60*time.Second, "signal length")
	cmd.Flags().Float64Var(&opts.hr, "hr", 72, "heart rate bpm [40,180]")
	cmd.Flags().Float64Var(&opts.stress, "stress", 0.4, "stress level [0,1]")
	cmd.Flags().BoolVar(&opts.noise, "noise", true, "add sensor noise")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "noise seed")
	return cmd
}
