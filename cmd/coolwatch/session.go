package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage cooling sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start timing a batch that just came off the heat",
	RunE:  runSessionStart,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cooling sessions",
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close [session-id]",
	Short: "Record a batch as refrigerated",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionClose,
}

var sessionDiscardCmd = &cobra.Command{
	Use:   "discard [session-id]",
	Short: "Record a batch as binned",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDiscard,
}

var sessionAuditCmd = &cobra.Command{
	Use:   "audit [session-id]",
	Short: "Show the audit trail for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionAudit,
}

var (
	itemName      string
	itemCategory  string
	staffName     string
	statusFilter  string
	closeTempText string
)

func init() {
	sessionCmd.AddCommand(sessionStartCmd, sessionListCmd, sessionShowCmd, sessionCloseCmd, sessionDiscardCmd, sessionAuditCmd)

	sessionStartCmd.Flags().StringVar(&itemName, "item", "", "Food item name (required)")
	sessionStartCmd.Flags().StringVar(&itemCategory, "category", "", "Food category (meat, soup, sauce, ...)")
	sessionStartCmd.Flags().StringVar(&staffName, "staff", "", "Staff member logging the batch")
	sessionStartCmd.MarkFlagRequired("item")

	sessionListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (active, warning, overdue, closed, discarded)")

	sessionCloseCmd.Flags().StringVar(&closeTempText, "temp", "", "Probe temperature in °C at refrigeration")
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"item_name":  itemName,
		"category":   itemCategory,
		"staff_name": staffName,
	}

	resp, err := apiPost("/sessions", body)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Started cooling session: %s\n", result["id"])
	fmt.Printf("Warn at:  %s\n", result["soft_due_at"])
	fmt.Printf("Limit at: %s\n", result["hard_due_at"])
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	url := "/sessions"
	if statusFilter != "" {
		url += "?status=" + statusFilter
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var sessions []map[string]interface{}
	if err := json.Unmarshal(resp, &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tITEM\tSTATUS\tSTAFF\tSTARTED\tLIMIT")
	for _, s := range sessions {
		id := truncateID(s["id"].(string))
		item := truncate(s["item_name"].(string), 30)
		status := s["status"].(string)
		staff := ""
		if v, ok := s["staff_name"].(string); ok {
			staff = v
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", id, item, status, staff, s["started_at"], s["hard_due_at"])
	}
	w.Flush()
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/sessions/" + args[0])
	if err != nil {
		return err
	}

	var sess map[string]interface{}
	if err := json.Unmarshal(resp, &sess); err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", sess["id"])
	fmt.Printf("Item:      %s\n", sess["item_name"])
	fmt.Printf("Category:  %s\n", sess["category"])
	fmt.Printf("Staff:     %s\n", sess["staff_name"])
	fmt.Printf("Status:    %s\n", sess["status"])
	fmt.Printf("Started:   %s\n", sess["started_at"])
	fmt.Printf("Warn at:   %s\n", sess["soft_due_at"])
	fmt.Printf("Limit at:  %s\n", sess["hard_due_at"])
	if v, ok := sess["closed_at"].(string); ok && v != "" {
		fmt.Printf("Closed:    %s\n", v)
	}
	if v, ok := sess["closing_temperature"].(float64); ok {
		fmt.Printf("Fridge °C: %.1f\n", v)
	}
	if v, ok := sess["synced_at"].(string); ok && v != "" {
		fmt.Printf("Synced:    %s\n", v)
	}

	return nil
}

func runSessionClose(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{}
	if closeTempText != "" {
		temp, err := strconv.ParseFloat(closeTempText, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q", closeTempText)
		}
		body["temperature"] = temp
	}

	resp, err := apiPost("/sessions/"+args[0]+"/close", body)
	if err != nil {
		return err
	}

	var sess map[string]interface{}
	if err := json.Unmarshal(resp, &sess); err != nil {
		return err
	}

	fmt.Printf("Closed session %s (%s in the fridge)\n", truncateID(args[0]), sess["item_name"])
	return nil
}

func runSessionDiscard(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/sessions/"+args[0]+"/discard", map[string]string{})
	if err != nil {
		return err
	}

	var sess map[string]interface{}
	if err := json.Unmarshal(resp, &sess); err != nil {
		return err
	}

	fmt.Printf("Discarded session %s (%s binned)\n", truncateID(args[0]), sess["item_name"])
	return nil
}

func runSessionAudit(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/sessions/" + args[0] + "/audit")
	if err != nil {
		return err
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(resp, &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tDETAILS")
	for _, e := range entries {
		details := ""
		if v, ok := e["details"].(string); ok {
			details = truncate(v, 40)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e["timestamp"], e["action"], e["outcome"], details)
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
