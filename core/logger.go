package core

type Logger interface {
	Criticalf(format string, args ...any)
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
	Noticef(format string, args ...any)
	Warningf(format string, args ...any)
}
