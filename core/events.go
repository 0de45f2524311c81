package core

import "github.com/sirupsen/logrus"

// emit publishes a governance event through the structured logger. Storage
// mutations are already visible through the store; the event stream exists
// for operators and indexers tailing the log.
func (e *Engine) emit(event, actor string, fields logrus.Fields) {
	if e.logger == nil {
		return
	}
	entry := e.logger.WithField("event", event).WithField("actor", actor)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Info("governance event")
}
