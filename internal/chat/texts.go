package chat

// User-facing texts. Wording is the operator's choice; only the triggering
// conditions matter for compatibility.
const (
	textUsage = "Usage: `!remind YYYY/MM/DD HH:mm message`\n" +
		"Example: `!remind 2030/11/24 15:00 Time for the meeting`\n" +
		"Or send `!remind` on its own for a guided setup."

	textBadDateTime = "❌ Invalid date or time. Please use the format `YYYY/MM/DD HH:mm`."
	textPastDate    = "❌ The scheduled time must be in the future."
	textStoreError  = "❌ Could not save the reminder. Please try again later."
	textListError   = "❌ Could not fetch your reminders. Please try again later."
	textNoSession   = "❌ No reminder registration in progress. It may have timed out — start again with `!remind`."
	textExpired     = "⌛ Reminder registration was cancelled because no recipients were chosen in time."
	textNoReminders = "📋 You have no pending reminders."
	textListHeader  = "📋 Your reminders:\n"
)
