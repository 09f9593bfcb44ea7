package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/leaveflow/internal/chat"
	"github.com/kalambet/leaveflow/internal/storage"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive leave assistant session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runChat(client)
	},
}

// chatUI drives a Session from terminal input, translating widget
// interactions (menu numbers, calendar clicks, confirm/edit) into the
// phrases the server understands.
type chatUI struct {
	session *chat.Session
	picker  chat.DatePicker
	scanner *bufio.Scanner
}

func runChat(backend chat.Backend) error {
	ui := &chatUI{
		session: chat.NewSession(backend),
		scanner: bufio.NewScanner(os.Stdin),
	}

	fmt.Println(colorize(colorBold, "leaveflow assistant") + " - type 'exit' to quit.")

	// Open the conversation so the server can greet and offer quick actions.
	if err := ui.send("Hello"); err != nil {
		printError("%v", err)
	}

	for {
		fmt.Print(colorize(colorCyan, "you> "))
		if !ui.scanner.Scan() {
			return ui.scanner.Err()
		}
		line := strings.TrimSpace(ui.scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := ui.handle(line); err != nil {
			printError("%v", err)
		}
	}
}

// handle interprets a line of input against the active widget, falling back
// to sending it as free text.
func (ui *chatUI) handle(line string) error {
	active := ui.activeEntry()

	if active != nil {
		switch active.Widget() {
		case chat.WidgetGreeting, chat.WidgetTypeSelector:
			if phrase, ok := actionByNumber(active.Actions, line); ok {
				return ui.send(chat.QuickActionPhrase(phrase))
			}
		case chat.WidgetDatePicker:
			if handled, err := ui.handleDateInput(line); handled {
				return err
			}
		case chat.WidgetConfirmationCard:
			switch strings.ToLower(line) {
			case "confirm", "yes", "y":
				return ui.submit()
			case "edit", "change":
				return ui.send(chat.EditPhrase())
			}
			if phrase, ok := actionByNumber(active.Actions, line); ok {
				if strings.EqualFold(phrase, "Confirm") {
					return ui.submit()
				}
				if strings.EqualFold(phrase, "Edit") {
					return ui.send(chat.EditPhrase())
				}
				return ui.send(chat.QuickActionPhrase(phrase))
			}
		}
		if phrase, ok := actionByNumber(active.Actions, line); ok {
			return ui.send(chat.QuickActionPhrase(phrase))
		}
	}

	return ui.send(line)
}

// handleDateInput feeds calendar clicks into the picker. The phrase is sent
// once a range is selected, or on "done" for a single day.
func (ui *chatUI) handleDateInput(line string) (bool, error) {
	if strings.EqualFold(line, "done") && ui.picker.HasSelection() {
		defer ui.resetPicker()
		return true, ui.send(ui.picker.Phrase())
	}
	if strings.EqualFold(line, "reset") {
		ui.resetPicker()
		fmt.Println("Selection cleared.")
		return true, nil
	}

	d, err := storage.ParseDate(line)
	if err != nil {
		return false, nil
	}
	ui.picker.Click(d)
	start, end := ui.picker.Range()
	if start != end {
		// Second click completes the range.
		defer ui.resetPicker()
		return true, ui.send(ui.picker.Phrase())
	}
	fmt.Printf("Selected %s. Enter another date for a range, or 'done' for a single day.\n", start)
	return true, nil
}

func (ui *chatUI) resetPicker() {
	ui.picker = chat.DatePicker{}
}

func (ui *chatUI) send(text string) error {
	entry, err := ui.session.Send(cmdCtx, text)
	if err != nil {
		if entry != nil {
			fmt.Println(colorize(colorRed, entry.Content))
		}
		return nil
	}
	if entry != nil {
		ui.render(*entry)
	}
	return nil
}

func (ui *chatUI) submit() error {
	entry, err := ui.session.SubmitLeave(cmdCtx)
	if err != nil {
		if entry != nil {
			fmt.Println(colorize(colorRed, entry.Content))
			return nil
		}
		return err
	}
	if entry != nil {
		fmt.Println(colorize(colorGreen, entry.Content))
	}
	return nil
}

func (ui *chatUI) activeEntry() *chat.Entry {
	ptr := ui.session.Transcript().ActivePointer()
	if ptr < 0 {
		return nil
	}
	entries := ui.session.Transcript().Entries()
	return &entries[ptr]
}

func (ui *chatUI) render(e chat.Entry) {
	fmt.Println(e.Content)

	switch e.Widget() {
	case chat.WidgetGreeting, chat.WidgetTypeSelector:
		renderActions(e.Actions)
	case chat.WidgetDatePicker:
		renderCalendar(storage.Today())
		fmt.Println("Enter a date (YYYY-MM-DD), two dates for a range, or 'done'.")
	case chat.WidgetConfirmationCard:
		renderConfirmationCard(e.Data)
		fmt.Println("Type 'confirm' to submit or 'edit' to change the request.")
	}
}

func renderActions(actions []string) {
	for i, a := range actions {
		fmt.Printf("  %s %s\n", colorize(colorBold, fmt.Sprintf("%d.", i+1)), a)
	}
}

func actionByNumber(actions []string, line string) (string, bool) {
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(actions) {
		return "", false
	}
	return actions[n-1], true
}

// renderCalendar prints a month grid with today marked.
func renderCalendar(today storage.Date) {
	first := storage.NewDate(today.Year(), today.Month(), 1)
	fmt.Printf("\n   %s\n", colorize(colorBold, first.Format("January 2006")))
	fmt.Println("   Mo Tu We Th Fr Sa Su")

	// Monday-based column of the first day.
	col := (int(first.Weekday()) + 6) % 7
	fmt.Print("   " + strings.Repeat("   ", col))

	daysInMonth := first.AddDate(0, 1, -1).Day()
	for day := 1; day <= daysInMonth; day++ {
		cell := fmt.Sprintf("%2d", day)
		if day == today.Day() {
			cell = colorize(colorGreen, cell)
		}
		fmt.Print(cell + " ")
		col++
		if col == 7 {
			fmt.Print("\n   ")
			col = 0
		}
	}
	fmt.Println()
}

func renderConfirmationCard(data map[string]any) {
	fmt.Println(colorize(colorBold, "\n  Leave request"))
	printCardField(data, "leave_type", "Type")
	printCardField(data, "start_date", "From")
	printCardField(data, "end_date", "To")
	printCardField(data, "duration_days", "Days")
	printCardField(data, "reason", "Reason")

	if v, ok := data["balance_available"]; ok {
		printStatus("Balance", "%v days available", v)
	}
	if impact, ok := data["team_impact"].(map[string]any); ok {
		printStatus("Team impact", "%v", impact["level"])
	}
	if compliance, ok := data["policy_compliance"].(map[string]any); ok {
		renderComplianceData(compliance)
	}
}

func printCardField(data map[string]any, key, label string) {
	if v, ok := data[key]; ok && v != "" {
		printStatus(label, "%v", v)
	}
}

func renderComplianceData(compliance map[string]any) {
	compliant, _ := compliance["compliant"].(bool)
	printComplianceBadge(compliant,
		stringSlice(compliance["violations"]),
		stringSlice(compliance["warnings"]))
}

// stringSlice converts a decoded JSON array into []string.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
