package chat

// Custom ids carried by interaction events. Adapters attach these to the UI
// elements they render so replies route back to the right step.
const (
	CustomIDStart      = "remind:start"
	CustomIDDetails    = "remind:details"
	CustomIDRecipients = "remind:recipients"
	CustomIDNoMention  = "remind:none"
)

// Form field keys for the details entry step.
const (
	FieldDate    = "date"
	FieldTime    = "time"
	FieldMessage = "message"
)

// Command is an inbound text command.
type Command struct {
	Text      string
	AuthorID  string
	ChannelID string
}

// ButtonPressed is an inbound button interaction.
type ButtonPressed struct {
	CustomID  string
	UserID    string
	ChannelID string
}

// SelectionMade is an inbound multi-select interaction carrying zero or more
// chosen user ids in display order.
type SelectionMade struct {
	CustomID  string
	UserID    string
	ChannelID string
	UserIDs   []string
}

// FormSubmitted is an inbound form submission keyed by field name.
type FormSubmitted struct {
	CustomID  string
	UserID    string
	ChannelID string
	Fields    map[string]string
}
