package main

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func workspaceFlag(cmd *cobra.Command) {
	cmd.Flags().String("workspace", "", "workspace id (or set AGENDA_WORKSPACE)")
}

func clientFor(cmd *cobra.Command) (*apiClient, error) {
	workspace, _ := cmd.Flags().GetString("workspace")
	return newAPIClient(workspace)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest content into a workspace's knowledge base",
	Long: `Ingest content into a workspace's knowledge base.

Examples:
  agenda ingest --workspace <id> --text "We close at 18:00 on Saturdays"
  agenda ingest --workspace <id> --url https://example.com/pricing
  agenda ingest --workspace <id> --file ./menu.pdf --title "Menu"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		fetchURL, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && fetchURL == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		req := map[string]any{}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case fetchURL != "":
			req["type"] = "url"
			req["url"] = fetchURL
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if strings.EqualFold(filepath.Ext(file), ".pdf") {
				req["type"] = "pdf"
				req["content"] = base64.StdEncoding.EncodeToString(data)
			} else {
				req["type"] = "text"
				req["content"] = string(data)
			}
			if title == "" {
				req["title"] = filepath.Base(file)
			}
		}

		client, err := clientFor(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/documents", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued document %s", result["id"])
		return nil
	},
}

func init() {
	workspaceFlag(ingestCmd)
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest (.pdf or plain text)")
	ingestCmd.Flags().String("title", "", "title for the document")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over a workspace's knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := clientFor(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/search", map[string]any{
			"query": query,
			"top_k": limit,
		})
		if err != nil {
			return err
		}

		var out struct {
			Results []struct {
				DocumentID string  `json:"document_id"`
				ChunkID    string  `json:"chunk_id"`
				Score      float32 `json:"score"`
				Preview    string  `json:"preview"`
			} `json:"results"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if out.Total == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range out.Results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score)
			fmt.Printf("  doc %s  chunk %s\n", colorize(colorCyan, r.DocumentID[:8]), r.ChunkID[:8])
			fmt.Printf("  %s\n", r.Preview)
		}
		return nil
	},
}

func init() {
	workspaceFlag(searchCmd)
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- book / cancel ---

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Book an appointment",
	Long: `Book an appointment in a workspace.

Example:
  agenda book --workspace <id> --service Haircut --client "Jane Doe" \
    --email jane@example.com --date 2026-09-15 --time 14:30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		for flag, key := range map[string]string{
			"service": "service_type_name",
			"client":  "client_name",
			"email":   "client_email",
			"phone":   "client_phone",
			"date":    "appointment_date",
			"time":    "appointment_time",
			"staff":   "staff_id",
			"notes":   "notes",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				payload[key] = v
			}
		}

		client, err := clientFor(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/actions", map[string]any{
			"action_name": "book_appointment",
			"payload":     payload,
		})
		if err != nil {
			return err
		}

		var result struct {
			AppointmentID   string `json:"appointment_id"`
			StaffName       string `json:"staff_name"`
			ServiceName     string `json:"service_name"`
			Date            string `json:"date"`
			Time            string `json:"time"`
			DurationMinutes int    `json:"duration_minutes"`
			Status          string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Booked %s on %s at %s with %s (%d min), appointment %s",
			result.ServiceName, result.Date, result.Time, result.StaffName,
			result.DurationMinutes, result.AppointmentID)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <appointment-id>",
	Short: "Cancel a confirmed appointment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFor(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/actions", map[string]any{
			"action_name": "cancel_appointment",
			"payload":     map[string]string{"appointment_id": args[0]},
		})
		if err != nil {
			return err
		}

		var result struct {
			AppointmentID string `json:"appointment_id"`
			Status        string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Appointment %s is now %s", result.AppointmentID, result.Status)
		return nil
	},
}

func init() {
	workspaceFlag(bookCmd)
	bookCmd.Flags().String("service", "", "service name to book")
	bookCmd.Flags().String("client", "", "client full name")
	bookCmd.Flags().String("email", "", "client email")
	bookCmd.Flags().String("phone", "", "client phone")
	bookCmd.Flags().String("date", "", "appointment date (YYYY-MM-DD)")
	bookCmd.Flags().String("time", "", "appointment time (HH:MM)")
	bookCmd.Flags().String("staff", "", "specific staff id (auto-assigned if omitted)")
	bookCmd.Flags().String("notes", "", "free-form notes")
	workspaceFlag(cancelCmd)
}

// --- appointments ---

var appointmentsCmd = &cobra.Command{
	Use:   "appointments",
	Short: "List a workspace's appointments for a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		client, err := clientFor(cmd)
		if err != nil {
			return err
		}

		path := "/v1/appointments"
		if date != "" {
			path += "?date=" + url.QueryEscape(date)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var out struct {
			Appointments []struct {
				ID              string `json:"appointment_id"`
				ClientName      string `json:"client_name"`
				Time            string `json:"time"`
				DurationMinutes int    `json:"duration_minutes"`
				Status          string `json:"status"`
			} `json:"appointments"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if out.Total == 0 {
			fmt.Println("No appointments.")
			return nil
		}

		for _, a := range out.Appointments {
			fmt.Printf("%s  %s  %3d min  %-10s %s\n",
				colorize(colorCyan, a.ID[:8]), a.Time, a.DurationMinutes, a.Status, a.ClientName)
		}
		return nil
	},
}

func init() {
	workspaceFlag(appointmentsCmd)
	appointmentsCmd.Flags().String("date", "", "date (YYYY-MM-DD), defaults to today")
}

// --- services / staff ---

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Manage a workspace's service catalog",
}

var servicesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a service to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetInt("duration")
		price, _ := cmd.Flags().GetString("price")

		client, err := clientFor(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/services", map[string]any{
			"name":             args[0],
			"duration_minutes": duration,
			"price":            price,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added service %s (%s)", result["name"], result["id"])
		return nil
	},
}

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Manage a workspace's staff",
}

var staffAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a staff member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		client, err := clientFor(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/staff", map[string]any{
			"name":  args[0],
			"email": email,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added staff member %s (%s)", result["name"], result["id"])
		return nil
	},
}

func init() {
	workspaceFlag(servicesAddCmd)
	servicesAddCmd.Flags().Int("duration", 30, "service duration in minutes")
	servicesAddCmd.Flags().String("price", "0", "service price, e.g. 45.00")
	servicesCmd.AddCommand(servicesAddCmd)

	workspaceFlag(staffAddCmd)
	staffAddCmd.Flags().String("email", "", "staff email")
	staffCmd.AddCommand(staffAddCmd)
}
