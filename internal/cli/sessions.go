package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/e2ecore/internal/db"
	"github.com/opencode-ai/e2ecore/internal/models"
	"github.com/spf13/cobra"
)

var (
	sessionsListLimit  int
	sessionsEventLimit int
	sessionsEventType  string
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsEventsCmd)

	sessionsListCmd.Flags().IntVar(&sessionsListLimit, "limit", 20, "maximum sessions to show")
	sessionsEventsCmd.Flags().IntVar(&sessionsEventLimit, "limit", 500, "maximum events to show")
	sessionsEventsCmd.Flags().StringVar(&sessionsEventType, "type", "", "only show events of this type (e.g. session.output_line)")
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions",
	Long:  "Inspect sessions recorded in the events database (--events-db).",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		records, err := db.NewSessionRepository(database).List(cmd.Context(), sessionsListLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No sessions recorded.")
			return nil
		}

		rows := make([][]string, 0, len(records))
		for _, record := range records {
			rows = append(rows, []string{
				shortID(record.ID),
				sessionName(record),
				formatSessionOutcome(record.Outcome),
				fmt.Sprintf("%d/%d", record.StepsCompleted, record.StepsTotal),
				record.StartedAt.Local().Format(time.DateTime),
				formatSessionDuration(record),
			})
		}
		return writeTable(out, []string{"ID", "NAME", "OUTCOME", "STEPS", "STARTED", "DURATION"}, rows)
	},
}

var sessionsEventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Show the event log of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		record, err := resolveSession(cmd, database, args[0])
		if err != nil {
			return err
		}

		query := db.EventQuery{SessionID: record.ID, Limit: sessionsEventLimit}
		if sessionsEventType != "" {
			eventType := models.EventType(sessionsEventType)
			query.Type = &eventType
		}
		page, err := db.NewEventRepository(database).Query(ctx, query)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, page.Events)
		}

		fmt.Fprintf(out, "%s  %s  %s\n\n", bold(sessionName(record)), record.ID, formatSessionOutcome(record.Outcome))
		rows := make([][]string, 0, len(page.Events))
		for _, event := range page.Events {
			rows = append(rows, []string{
				event.Timestamp.Local().Format("15:04:05.000"),
				strings.TrimPrefix(string(event.Type), "session."),
				string(event.Payload),
			})
		}
		if err := writeTable(out, []string{"TIME", "TYPE", "PAYLOAD"}, rows); err != nil {
			return err
		}
		if page.NextCursor > 0 {
			fmt.Fprintf(out, "\n%s\n", colorize("more events available; raise --limit", colorMuted))
		}
		return nil
	},
}

// resolveSession finds a session by full ID or by a unique ID prefix among
// recent sessions.
func resolveSession(cmd *cobra.Command, database *db.DB, ref string) (*models.SessionRecord, error) {
	repo := db.NewSessionRepository(database)
	record, err := repo.Get(cmd.Context(), ref)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, db.ErrSessionNotFound) {
		return nil, err
	}

	recent, err := repo.List(cmd.Context(), 500)
	if err != nil {
		return nil, err
	}
	var match *models.SessionRecord
	for _, candidate := range recent {
		if strings.HasPrefix(candidate.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("session id %q is ambiguous", ref)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, fmt.Errorf("session %q not found", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sessionName(record *models.SessionRecord) string {
	if record.Name != "" {
		return record.Name
	}
	return record.Command
}

func formatSessionDuration(record *models.SessionRecord) string {
	if record.FinishedAt == nil {
		return "-"
	}
	return formatDuration(record.FinishedAt.Sub(record.StartedAt))
}
