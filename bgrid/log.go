package bgrid

import (
	"strings"
	"time"
)

// ModeFlag is the lowest severity that gets logged.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var modeNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL", "SILENT"}

func (m ModeFlag) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "UNKNOWN"
}

var (
	// Verbose is set by the -verbose flag.
	Verbose bool

	mode = InfoMode
)

// Logger is the backend for the package-level logging functions.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	// Shutdown flushes and closes any log file.
	Shutdown()
}

// SetLogMode drops messages below the given severity.  SilentMode drops all.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

// LogMode returns the current severity threshold.
func LogMode() ModeFlag {
	return mode
}

func logf(m ModeFlag, l Logger, format string, args ...interface{}) {
	if mode > m {
		return
	}
	switch m {
	case DebugMode:
		l.Debugf(format, args...)
	case InfoMode:
		l.Infof(format, args...)
	case WarningMode:
		l.Warningf(format, args...)
	case ErrorMode:
		l.Errorf(format, args...)
	case CriticalMode:
		l.Criticalf(format, args...)
	}
}

func Debugf(format string, args ...interface{}) {
	logf(DebugMode, logger, format, args...)
}

func Infof(format string, args ...interface{}) {
	logf(InfoMode, logger, format, args...)
}

func Warningf(format string, args ...interface{}) {
	logf(WarningMode, logger, format, args...)
}

func Errorf(format string, args ...interface{}) {
	logf(ErrorMode, logger, format, args...)
}

func Criticalf(format string, args ...interface{}) {
	logf(CriticalMode, logger, format, args...)
}

// Shutdown closes any log file opened by LogConfig.SetLogger.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog appends the time elapsed since its creation to each message.
//
//	tlog := NewTimeLog()
//	...
//	tlog.Debugf("decoded %d attributes", n)
type TimeLog struct {
	logger Logger
	start  time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{logger, time.Now()}
}

func (t TimeLog) logf(m ModeFlag, format string, args ...interface{}) {
	format = strings.TrimSuffix(format, "\n") + ": %s\n"
	logf(m, t.logger, format, append(args, time.Since(t.start))...)
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	t.logf(DebugMode, format, args...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	t.logf(InfoMode, format, args...)
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	t.logf(WarningMode, format, args...)
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	t.logf(ErrorMode, format, args...)
}

// Elapsed returns the time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}
