package chat

import (
	jww "github.com/spf13/jwalterweatherman"
)

// Severity classifies a notification surfaced to the user.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Notifier is the fire-and-forget sink for user-facing notifications.
// Failures inside the core never cross to the UI as faults; they end up here.
type Notifier interface {
	Notify(severity Severity, text string)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(Severity, string)

func (f NotifierFunc) Notify(severity Severity, text string) { f(severity, text) }

// LogNotifier writes notifications to the log. It is the default sink when no
// UI is attached.
type LogNotifier struct{}

func (LogNotifier) Notify(severity Severity, text string) {
	switch severity {
	case SeverityError:
		jww.ERROR.Printf("notify: %s", text)
	default:
		jww.INFO.Printf("notify [%s]: %s", severity, text)
	}
}
