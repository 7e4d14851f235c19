package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilthomas300/myCompanion/client"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the agent server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, c, err := setup()
		if err != nil {
			return err
		}
		hs, err := c.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("health check %s: %w", c.BaseURL(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", c.BaseURL(), hs.Status)
		if hs.Protocol != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", hs.Protocol)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt [reason]",
	Short: "Ask the agent to stop the work in progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, c, err := setup()
		if err != nil {
			return err
		}
		if err := c.Interrupt(cmd.Context(), strings.Join(args, " ")); err != nil {
			return fmt.Errorf("interrupt: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "interrupt sent")
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <message-id> <like|dislike|copy>",
	Short: "Record feedback on an assistant message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := client.ParseFeedbackKind(args[1])
		if err != nil {
			return err
		}
		_, _, c, err := setup()
		if err != nil {
			return err
		}
		if err := c.SubmitFeedback(cmd.Context(), args[0], kind); err != nil {
			return fmt.Errorf("feedback: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "feedback recorded")
		return nil
	},
}

var reviewNotes string

var reviewCmd = &cobra.Command{
	Use:   "review <approve|reject|modify>",
	Short: "Answer a tool result that is waiting for human review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := client.ParseHumanAction(args[0])
		if err != nil {
			return err
		}
		_, _, c, err := setup()
		if err != nil {
			return err
		}
		if err := c.SubmitHumanAction(cmd.Context(), action, reviewNotes); err != nil {
			return fmt.Errorf("review: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "review sent: %s\n", action)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd, interruptCmd, feedbackCmd, reviewCmd)
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "Notes for the agent")
}
