package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResultCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "result <request-id>",
		Short: "Show the family result of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, _ := cmd.Flags().GetDuration("wait")
			jsonOut, _ := cmd.Flags().GetBool("json")

			res, err := newAPIClient(a.baseURL()).result(cmd.Context(), args[0], wait)
			if errors.Is(err, errPending) {
				if jsonOut {
					return printResult(cmd.OutOrStdout(), pendingResult(args[0]), true)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "request:  %s\nstate:    pending\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, jsonOut)
		},
	}
	cmd.Flags().Duration("wait", 0, "Let the server hold the request until the family changes")
	return cmd
}
