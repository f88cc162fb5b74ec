package logger

import (
	waLog "go.mau.fi/whatsmeow/util/log"
)

// waAdapter routes whatsmeow library logs through the application logger
type waAdapter struct {
	log Logger
}

// WhatsApp returns a waLog.Logger writing to l under the given module name
func WhatsApp(l Logger, module string) waLog.Logger {
	return &waAdapter{log: l.Named(module)}
}

func (a *waAdapter) Debugf(msg string, args ...interface{}) { a.log.Debugf(msg, args...) }
func (a *waAdapter) Infof(msg string, args ...interface{})  { a.log.Infof(msg, args...) }
func (a *waAdapter) Warnf(msg string, args ...interface{})  { a.log.Warnf(msg, args...) }
func (a *waAdapter) Errorf(msg string, args ...interface{}) { a.log.Errorf(msg, args...) }

func (a *waAdapter) Sub(module string) waLog.Logger {
	return &waAdapter{log: a.log.Named(module)}
}
