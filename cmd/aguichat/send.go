package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilthomas300/myCompanion/store"
)

var (
	sendJSON   bool
	sendThread string
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one message and print the resulting conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, c, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		var opts []store.Option
		opts = append(opts, store.WithLogger(logger))
		if sendThread != "" {
			opts = append(opts, store.WithThreadID(sendThread))
		}
		st := store.New(c, opts...)
		defer st.Close()

		sendErr := st.Send(ctx, strings.Join(args, " "))
		final := st.State()

		out := cmd.OutOrStdout()
		if sendJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(final); err != nil {
				return err
			}
		} else {
			r, err := newRenderer(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(out, r.Transcript(final))
		}

		if sendErr != nil {
			return sendErr
		}
		if final.Error != "" {
			return fmt.Errorf("run failed: %s", final.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output the final state as JSON")
	sendCmd.Flags().StringVar(&sendThread, "thread", "", "Continue an existing thread ID")
}
