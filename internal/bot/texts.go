package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/eventbot/core/telegram/format"
	"github.com/m3rciful/eventbot/internal/dialogue"
	"github.com/m3rciful/eventbot/internal/events"
	"github.com/m3rciful/eventbot/internal/shortener"
)

// Fixed replies.
const (
	TextHelp = "To create a new event pick it in the menu or send /add_event\n" +
		"To see the stored events pick it in the menu or send /get_events\n" +
		"To see every event with its usage statistics pick it in the menu or send /get_usages_count"

	TextAddEventIntro = "Fill in every field of the event. To stop filling send /cancel\n"
	TextCancelled     = "You stopped filling in the event.\n" +
		"To start again pick it in the menu or send /add_event"

	TextSaved    = "The event is saved to the database. Thank you!"
	TextRejected = "Adding the event is cancelled. Pick it in the menu or send /add_event to create a new event."

	TextPickEvent   = "Choose the event you need a link for:"
	TextNoEvents    = "The event list is empty."
	TextNoStats     = "There are no events in the database."
	TextStatsHeader = "Events with their usage statistics:\n"

	TextEventNotFound = "This event no longer exists."
	TextBadDate       = "Could not read the date. Use the format YYYY-MM-DD HH:MM:SS."

	TextNoLinks         = "There are no short links in the database."
	TextLinkStatsHeader = "Short links with their usage statistics:\n"

	TextUnknown          = "Invalid input. If you need help pick it in the menu or send /help."
	TextUnknownShortener = "Invalid input. Just send a long link."
	TextInternalError    = "Something went wrong. Please try again later."
)

// Command menu descriptions.
const (
	DescAddEvent       = "Add a new event."
	DescGetEvents      = "Show the current events."
	DescGetUsagesCount = "Show event usage statistics."
	DescHelp           = "How to use the bot."
	DescStart          = "Start the bot."
	DescCancel         = "Stop filling in the event."
)

var prompts = map[string]string{
	dialogue.FieldSummary:     "Please enter the event title.",
	dialogue.FieldLongURL:     "Now enter the event link.",
	dialogue.FieldLocation:    "Now enter the location.",
	dialogue.FieldDescription: "Now enter the event description.",
	dialogue.FieldDateStart:   "Now enter the event start date in the format YYYY-MM-DD HH:MM:SS.",
	dialogue.FieldDateEnd:     "Now enter the event end date in the format YYYY-MM-DD HH:MM:SS.",
}

var fieldLabels = map[string]string{
	dialogue.FieldSummary:     "Title",
	dialogue.FieldLongURL:     "Event link",
	dialogue.FieldLocation:    "Location",
	dialogue.FieldDescription: "Description",
	dialogue.FieldDateStart:   "Start",
	dialogue.FieldDateEnd:     "End",
}

// Prompt returns the question asked for field.
func Prompt(field string) string {
	return prompts[field]
}

// Welcome greets the user by first name.
func Welcome(firstName string) string {
	return fmt.Sprintf("Hi, %s! This bot creates events and gives short links to them.", firstName)
}

// ConfirmationText lists the collected values in entry order.
func ConfirmationText(values []dialogue.FieldValue) string {
	var b strings.Builder
	b.WriteString("Confirm the entered data:\n\n")
	for _, v := range values {
		fmt.Fprintf(&b, "%s: %s\n", fieldLabels[v.Field], v.Value)
	}
	b.WriteString("\n")
	return b.String()
}

// UsageStatsText renders one line per event.
func UsageStatsText(stats []events.UsageStat) string {
	if len(stats) == 0 {
		return TextNoStats
	}
	var b strings.Builder
	b.WriteString(TextStatsHeader)
	for _, s := range stats {
		fmt.Fprintf(&b, "Link to the event %s - used %d time(s)\n", s.Summary, s.UsageCount)
	}
	return b.String()
}

// LinkStatsText renders one line per shortened link.
func LinkStatsText(stats []shortener.LinkStat) string {
	if len(stats) == 0 {
		return TextNoLinks
	}
	var b strings.Builder
	b.WriteString(TextLinkStatsHeader)
	for _, s := range stats {
		fmt.Fprintf(&b, "%s - used %d time(s)\n", s.ShortURL, s.UsageCount)
	}
	return b.String()
}

// EventLinkText is the MarkdownV2 reply for a chosen event.
func EventLinkText(link events.EventLink) string {
	return "Link to the event " + format.LinkV2(link.Summary, link.LongURL)
}

// ShortLinkText answers a shorten request.
func ShortLinkText(link shortener.ShortLink) string {
	return fmt.Sprintf("Original link: %s\nShort link: %s", link.LongURL, link.ShortURL)
}
