// Package main implements the planctl CLI for manual operations against
// the plannerd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the plannerd HTTP server
	serverURL string
	// userID identifies the acting user for turn and feedback commands
	userID int64
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "planctl",
	Short: "CLI for plannerd HTTP server operations",
	Long: `planctl is a command-line interface for interacting with the plannerd HTTP server.
It provides commands for sending conversation turns, submitting plan feedback,
inspecting plans, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9080", "plannerd server URL")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", 1, "acting user ID")
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(healthCmd)
}

// turnCmd sends one conversation turn
var turnCmd = &cobra.Command{
	Use:   "turn [message]",
	Short: "Send a conversation turn to the planner",
	Long: `Send one user message through the planning workflow and print the reply.

Examples:
  # Start a new plan
  planctl turn "I want to run a half marathon in June"

  # Answer a pending confirmation
  planctl turn confirm

  # Act as a different user
  planctl turn --user 7 "show my plan"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTurn,
}

// feedbackCmd submits plan feedback
var feedbackCmd = &cobra.Command{
	Use:   "feedback [plan-id] [approve|request_refinement|reject]",
	Short: "Submit feedback for a plan",
	Long: `Record feedback for a proposed plan. Each plan accepts exactly one
feedback submission; approving a plan revokes approval from any sibling
plan under the same goal.

Examples:
  # Approve plan 3
  planctl feedback 3 approve

  # Ask for a refined version
  planctl feedback 3 request_refinement --changes "shorter sessions on weekdays"`,
	Args: cobra.ExactArgs(2),
	RunE: runFeedback,
}

var feedbackChanges string

func init() {
	feedbackCmd.Flags().StringVar(&feedbackChanges, "changes", "", "suggested changes for request_refinement")
}

// plansCmd lists or shows plans
var plansCmd = &cobra.Command{
	Use:   "plans [plan-id]",
	Short: "List the user's plans, or show one plan with its tasks",
	Long: `Without arguments, list the acting user's plans newest first.
With a plan ID, show that plan and its tasks.

Examples:
  planctl plans
  planctl plans 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlans,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check plannerd server health",
	RunE:  runHealth,
}

// Request and response bodies mirror internal/http types.

type turnRequest struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

type turnResponse struct {
	RunID     string   `json:"run_id"`
	Intent    string   `json:"intent"`
	Reply     string   `json:"reply"`
	Suspended bool     `json:"suspended"`
	PlanID    int64    `json:"plan_id"`
	Warnings  []string `json:"warnings"`
}

type feedbackRequest struct {
	UserID           int64  `json:"user_id"`
	Action           string `json:"action"`
	SuggestedChanges string `json:"suggested_changes,omitempty"`
}

type feedbackResponse struct {
	Feedback struct {
		PlanID int64  `json:"plan_id"`
		Action string `json:"action"`
	} `json:"feedback"`
	Unapproved int           `json:"unapproved"`
	Turn       *turnResponse `json:"turn"`
}

type planBody struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

type taskBody struct {
	Title     string `json:"title"`
	StartAt   string `json:"start_at"`
	Completed bool   `json:"completed"`
}

type planResponse struct {
	Plan  planBody   `json:"plan"`
	Tasks []taskBody `json:"tasks"`
}

type plansResponse struct {
	Plans []planBody `json:"plans"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func runTurn(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")

	var res turnResponse
	if err := postJSON("/api/v1/turn", turnRequest{UserID: userID, Message: message}, &res); err != nil {
		return err
	}

	fmt.Println(res.Reply)
	if res.Suspended {
		fmt.Fprintf(os.Stderr, "[planctl] run %s is waiting for your answer\n", res.RunID)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "[planctl] warning: %s\n", w)
	}
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	planID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid plan id %q", args[0])
	}

	req := feedbackRequest{
		UserID:           userID,
		Action:           args[1],
		SuggestedChanges: feedbackChanges,
	}

	var res feedbackResponse
	if err := postJSON(fmt.Sprintf("/api/v1/plans/%d/feedback", planID), req, &res); err != nil {
		return err
	}

	fmt.Printf("Recorded %s for plan %d\n", res.Feedback.Action, res.Feedback.PlanID)
	if res.Unapproved > 0 {
		fmt.Printf("Revoked approval from %d sibling plan(s)\n", res.Unapproved)
	}
	if res.Turn != nil {
		fmt.Println()
		fmt.Println(res.Turn.Reply)
	}
	return nil
}

func runPlans(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		planID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid plan id %q", args[0])
		}

		var res planResponse
		if err := getJSON(fmt.Sprintf("/api/v1/plans/%d", planID), &res); err != nil {
			return err
		}

		fmt.Printf("Plan %d: %s [%s]\n", res.Plan.ID, res.Plan.Title, res.Plan.Status)
		for _, t := range res.Tasks {
			marker := " "
			if t.Completed {
				marker = "x"
			}
			fmt.Printf("  [%s] %s  %s\n", marker, t.Title, t.StartAt)
		}
		return nil
	}

	var res plansResponse
	if err := getJSON(fmt.Sprintf("/api/v1/plans?user_id=%d", userID), &res); err != nil {
		return err
	}

	if len(res.Plans) == 0 {
		fmt.Println("No plans yet")
		return nil
	}
	for _, p := range res.Plans {
		fmt.Printf("%d\t%s\t%s\n", p.ID, p.Status, p.Title)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var res healthResponse
	if err := getJSON("/health", &res); err != nil {
		return err
	}
	fmt.Printf("Server Status: %s\n", res.Status)
	return nil
}

func postJSON(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func getJSON(path string, out any) error {
	url := serverURL + path
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
