// Package chat holds the messaging-surface contract and the
// platform-agnostic command router. The concrete platform lives in a
// subpackage and is only connected through these interfaces.
package chat

import "context"

// Channel is a sendable delivery target.
type Channel interface {
	Send(ctx context.Context, text string) error
}

// Gateway is everything the core needs from the chat platform.
type Gateway interface {
	// ResolveChannel maps a stored channel id to a sendable channel.
	// A miss is reported as domain.ErrChannelNotFound.
	ResolveChannel(ctx context.Context, channelID string) (Channel, error)

	// Mention renders a user tag the platform will highlight.
	Mention(userID string) string

	// Escape neutralizes formatting metacharacters in user-supplied text so
	// it can be embedded in an outbound message without breaking the
	// platform's parse mode.
	Escape(text string) string

	// PromptDetails presents the date/time/message entry step.
	PromptDetails(ctx context.Context, channelID, userID string) error

	// PromptRecipients presents the recipient-selection step, including the
	// explicit no-mention affordance.
	PromptRecipients(ctx context.Context, channelID, userID string) error
}
