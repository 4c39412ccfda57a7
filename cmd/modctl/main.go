package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/admarket/moderation/pkg/domain"
)

type client struct {
	baseURL    string
	httpClient *http.Client
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() ui {
	return ui{
		title: color.New(color.FgCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed).SprintFunc(),
		dim:   color.New(color.Faint).SprintFunc(),
	}
}

func (c *client) postJSON(path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *client) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func main() {
	u := newUI()
	c := &client{httpClient: &http.Client{Timeout: 10 * time.Second}}

	root := &cobra.Command{
		Use:           "modctl",
		Short:         "CLI for the listing moderation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.baseURL, "base-url", "http://localhost:8003", "moderation API base URL")

	enqueueCmd := &cobra.Command{
		Use:   "enqueue <listing-id>",
		Short: "Enqueue a listing for asynchronous moderation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var resp domain.AsyncPredictResponse
			if err := c.postJSON("/async_predict", domain.ListingRequest{ListingID: id}, &resp); err != nil {
				return err
			}
			fmt.Println(u.title("task"), resp.TaskID, u.dim(string(resp.Status)))
			fmt.Println(u.ok(resp.Message))
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the moderation verdict for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var resp domain.ModerationResultResponse
			if err := c.getJSON(fmt.Sprintf("/moderation_result/%d", id), &resp); err != nil {
				return err
			}
			fmt.Println(u.title("task"), resp.TaskID, u.dim(string(resp.Status)))
			switch resp.Status {
			case domain.StatusCompleted:
				verdict := u.ok("clean")
				if resp.IsViolation != nil && *resp.IsViolation {
					verdict = u.err("violation")
				}
				fmt.Printf("%s %s %.4f\n", verdict, u.dim("probability"), *resp.Probability)
			case domain.StatusFailed:
				fmt.Println(u.err("moderation failed"))
			default:
				fmt.Println(u.warn("still pending"))
			}
			return nil
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <listing-id>",
		Short: "Close a listing and purge its cached verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var resp domain.CloseListingResponse
			if err := c.postJSON("/close", domain.ListingRequest{ListingID: id}, &resp); err != nil {
				return err
			}
			fmt.Println(u.ok(resp.Message), u.dim(fmt.Sprintf("listing %d", resp.ListingID)))
			return nil
		},
	}

	predictCmd := &cobra.Command{
		Use:   "predict <listing-id>",
		Short: "Synchronously classify a stored listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var resp domain.Prediction
			if err := c.postJSON("/simple_predict", domain.ListingRequest{ListingID: id}, &resp); err != nil {
				return err
			}
			verdict := u.ok("clean")
			if resp.IsViolation {
				verdict = u.err("violation")
			}
			fmt.Printf("%s %s %.4f\n", verdict, u.dim("probability"), resp.Probability)
			return nil
		},
	}

	root.AddCommand(enqueueCmd, statusCmd, closeCmd, predictCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, u.err("error:"), err)
		os.Exit(1)
	}
}
