package models

import "time"

// NotificationKind tags outbound messages.
type NotificationKind string

const (
	NotifyStartup     NotificationKind = "startup"
	NotifySignal      NotificationKind = "signal"
	NotifyTrade       NotificationKind = "trade"
	NotifyNotTradable NotificationKind = "not_tradable"
	NotifyOutcome     NotificationKind = "outcome"
	NotifyFatal       NotificationKind = "fatal"
	NotifyShutdown    NotificationKind = "shutdown"
)

// Notification is a best-effort operator message. Text is Markdown.
type Notification struct {
	Kind       NotificationKind       `json:"kind"`
	Instrument string                 `json:"instrument,omitempty"`
	Text       string                 `json:"text"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
