package usecase

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Reporter prints the operator-facing lines of a run, one per notable event.
type Reporter interface {
	Success(format string, args ...interface{})
	Notice(format string, args ...interface{})
	Failure(format string, args ...interface{})
}
