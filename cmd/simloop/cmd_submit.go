package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-sim-loop/internal/model"
	"go-sim-loop/internal/pipeline"

	"github.com/spf13/cobra"
)

func newSubmitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a simulation request",
		Long: `Submit a simulation request with a pass criterion.

Parameters are given as name=value pairs; numeric values are sent as numbers,
anything else as text. With --wait the command polls until the family of the
request passed or cannot change any more, or the budget is spent.`,
		Example: `  simloop submit --model-file ball.json --param h0=1.0 --param e=0.7 --field h --target 1.2 --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, _ := cmd.Flags().GetString("model")
			modelFile, _ := cmd.Flags().GetString("model-file")
			rawParams, _ := cmd.Flags().GetStringArray("param")
			field, _ := cmd.Flags().GetString("field")
			target, _ := cmd.Flags().GetFloat64("target")
			start, _ := cmd.Flags().GetFloat64("start")
			stop, _ := cmd.Flags().GetFloat64("stop")
			wait, _ := cmd.Flags().GetBool("wait")
			budget, _ := cmd.Flags().GetDuration("budget")
			interval, _ := cmd.Flags().GetDuration("interval")
			jsonOut, _ := cmd.Flags().GetBool("json")

			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}
			sub := model.SubmitRequest{
				ModelReference: ref,
				Parameters:     params,
				Criterion:      &model.SubmitCriterion{FieldName: field, TargetValue: target},
			}
			if modelFile != "" {
				data, err := os.ReadFile(modelFile)
				if err != nil {
					return fmt.Errorf("read model file: %w", err)
				}
				sub.ModelData = base64.StdEncoding.EncodeToString(data)
				if sub.ModelReference == "" {
					sub.ModelReference = filepath.Base(modelFile)
				}
			}
			if cmd.Flags().Changed("stop") {
				sub.Window = &model.Window{StartTime: start, StopTime: stop}
			}
			if _, err := sub.Validate(); err != nil {
				return err
			}

			client := newAPIClient(a.baseURL())
			ctx := cmd.Context()
			resp, err := client.submit(ctx, sub)
			if err != nil {
				return err
			}
			if !wait {
				return printSubmitted(cmd.OutOrStdout(), resp.RequestID, jsonOut)
			}
			if !jsonOut {
				fmt.Fprintf(cmd.ErrOrStderr(), "submitted %s, waiting for the result...\n", resp.RequestID)
			}

			opts := pipeline.AwaitOptions{Budget: a.cfg.Poll.WaitBudget, Interval: a.cfg.Poll.Interval}
			if budget > 0 {
				opts.Budget = budget
			}
			if interval > 0 {
				opts.Interval = interval
			}
			res, err := pipeline.AwaitFamily(ctx, func(ctx context.Context) (model.FamilyResult, error) {
				res, err := client.result(ctx, resp.RequestID, 0)
				if errors.Is(err, errPending) {
					return pendingResult(resp.RequestID), nil
				}
				return res, err
			}, opts)
			if err != nil && res.State != model.StateTimeout {
				return err
			}
			if res.RequestID == "" {
				res.RequestID = resp.RequestID
			}
			return printResult(cmd.OutOrStdout(), res, jsonOut)
		},
	}

	cmd.Flags().String("model", "", "Model reference (defaults to the model file name)")
	cmd.Flags().String("model-file", "", "Upload this model file with the request")
	cmd.Flags().StringArrayP("param", "p", nil, "Parameter as name=value (repeatable)")
	cmd.Flags().String("field", "", "Output field the criterion observes")
	cmd.Flags().Float64("target", 0, "Target value: max(field) must reach it")
	cmd.Flags().Float64("start", 0, "Simulation start time")
	cmd.Flags().Float64("stop", 0, "Simulation stop time")
	cmd.Flags().Bool("wait", false, "Wait for the family result")
	cmd.Flags().Duration("budget", 0, "How long --wait polls (default poll.wait_budget)")
	cmd.Flags().Duration("interval", 0, "Pause between polls (default poll.interval)")
	return cmd
}

// parseParams turns name=value pairs into request parameters. Numbers keep
// their literal form so 1.0 stays a float and 3 an integer.
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q: want name=value", pair)
		}
		value = strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			params[name] = json.Number(value)
			continue
		}
		params[name] = value
	}
	return params, nil
}

func printSubmitted(w io.Writer, id string, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(map[string]string{"status": "submitted", "request_id": id})
	}
	_, err := fmt.Fprintf(w, "submitted %s\n", id)
	return err
}

func printResult(w io.Writer, res model.FamilyResult, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "request:  %s (family %s)\n", res.RequestID, res.RootID)
	fmt.Fprintf(w, "state:    %s\n", res.State)
	if res.State != model.StateComplete {
		return nil
	}
	outcome := "failed"
	if res.FamilyPassed {
		outcome = "passed"
	}
	fmt.Fprintf(w, "outcome:  %s (%d of %d runs passed)\n", outcome, res.PassedCount, res.TotalRuns)
	if res.BestValue != nil {
		kind := "original request"
		if res.IsVariant {
			kind = "generated variant"
		}
		fmt.Fprintf(w, "best:     %s = %g (%s)\n", res.BestRequestID, *res.BestValue, kind)
	}
	if !res.FamilyPassed && !res.Settled {
		fmt.Fprintln(w, "note:     variants are still running")
	}
	return nil
}
