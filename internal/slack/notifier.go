// Package slack delivers engine notices to a Slack channel.
package slack

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
)

// Notifier posts engine notices to the channel configured in the engine
// settings. Delivery is fire-and-forget: failures are logged, never returned
// to the caller.
type Notifier struct {
	db *gorm.DB

	// newClient is swapped out in tests
	newClient func(token string) slackPoster
}

type slackPoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// NewNotifier creates a Slack notifier reading its settings from the database
func NewNotifier(db *gorm.DB) *Notifier {
	return &Notifier{
		db: db,
		newClient: func(token string) slackPoster {
			return slack.New(token)
		},
	}
}

// Post sends a message to the configured channel. A disabled or unconfigured
// integration is a silent no-op.
func (n *Notifier) Post(title, message string) {
	settings, err := database.GetOrCreateEngineSettings(n.db)
	if err != nil {
		log.Printf("Slack: could not load settings: %v", err)
		return
	}
	if !settings.SlackConfigured() {
		return
	}

	client := n.newClient(settings.SlackBotToken)
	text := message
	if title != "" {
		text = fmt.Sprintf("*%s*\n%s", title, message)
	}

	_, _, err = client.PostMessage(settings.SlackChannel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		log.Printf("Slack: failed to post to %s: %v", settings.SlackChannel, err)
		return
	}
	log.Printf("Slack: posted notice to %s", settings.SlackChannel)
}

// PublishExecution lets the notifier act as an execution event sink
func (n *Notifier) PublishExecution(eventType string, execution *database.ActionExecution, actionType string) {
	n.PostExecutionNotice(eventType, execution, actionType)
}

// PostExecutionNotice announces an execution lifecycle event
func (n *Notifier) PostExecutionNotice(eventType string, execution *database.ActionExecution, actionType string) {
	title := fmt.Sprintf("Execution %s", eventType)
	message := fmt.Sprintf("Action type `%s`, execution `%s`, status `%s`",
		actionType, execution.UUID, execution.Status)
	if execution.ErrorMessage != "" {
		message += fmt.Sprintf("\nError: %s", execution.ErrorMessage)
	}
	n.Post(title, message)
}

// PostPatternNotice announces a detected pattern
func (n *Notifier) PostPatternNotice(patternType string, severity database.PatternSeverity, description string) {
	emoji := database.GetSeverityEmoji(severity)
	n.Post(fmt.Sprintf("%s Pattern detected: %s", emoji, patternType), description)
}
