package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/model"
)

func statusLabel(s model.CheckInStatus) string {
	if s == model.StatusCheckedIn {
		return color.New(color.FgGreen).Sprint(s.String())
	}
	return color.New(color.FgYellow).Sprint(s.String())
}

func actionLabel(action string) string {
	switch action {
	case checkin.ActionEscalate.String():
		return color.New(color.FgRed, color.Bold).Sprint(action)
	case checkin.ActionRecordCheckIn.String():
		return color.New(color.FgGreen).Sprint(action)
	case checkin.ActionReset.String():
		return color.New(color.FgCyan).Sprint(action)
	default:
		return action
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func renderRecord(w io.Writer, rec model.CheckInRecord, threshold int) {
	fmt.Fprintf(w, "Status:       %s\n", statusLabel(rec.Status))
	fmt.Fprintf(w, "Days elapsed: %d / %d\n", rec.DaysElapsed, threshold)

	emailSent := yesNo(rec.EmailSent)
	if rec.EmailSent {
		emailSent = color.New(color.FgRed).Sprint(emailSent)
	}
	fmt.Fprintf(w, "Email sent:   %s\n", emailSent)
	fmt.Fprintf(w, "Last checked: %s\n", rec.LastChecked.Format(time.RFC3339))

	if rec.LastMessage != "" {
		fmt.Fprintf(w, "Last message: %s\n", rec.LastMessage)
	}
}

func renderOutcome(w io.Writer, outcome *checkin.Outcome, threshold int) {
	fmt.Fprintf(w, "Cycle %d: %s", outcome.CycleID, actionLabel(outcome.Action.String()))
	if outcome.NewRecord {
		fmt.Fprint(w, " (new record)")
	}
	fmt.Fprintln(w)

	if outcome.InboxUnavailable {
		fmt.Fprintf(w, "  %s inbox unavailable, treated as no message\n", color.New(color.FgYellow).Sprint("!"))
	}
	if outcome.ReminderErr != nil {
		fmt.Fprintf(w, "  %s reminder failed: %v\n", color.New(color.FgYellow).Sprint("!"), outcome.ReminderErr)
	} else if outcome.ReminderSent {
		fmt.Fprintln(w, "  reminder sent")
	}
	fmt.Fprintln(w)

	renderRecord(w, outcome.Record, threshold)
}

func renderHistory(w io.Writer, audits []model.CycleAudit) {
	if len(audits) == 0 {
		fmt.Fprintln(w, "No cycles recorded yet.")
		return
	}

	for _, a := range audits {
		fmt.Fprintf(w, "%s  %-16s  day %-3d  %-15s  email=%s",
			a.OccurredAt.Format(time.RFC3339),
			a.Action,
			a.DaysElapsed,
			a.Status,
			yesNo(a.EmailSent),
		)
		if a.ReminderError != "" {
			fmt.Fprintf(w, "  reminder error: %s", a.ReminderError)
		}
		fmt.Fprintln(w)
	}
}
