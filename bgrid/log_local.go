package bgrid

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

// stdLogger writes through the standard log package, into a rotating file
// once LogConfig.SetLogger has been called.
type stdLogger struct {
	file *lumberjack.Logger
}

var logger Logger = stdLogger{}

// LogConfig is the [logging] section of the configuration.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"` // megabytes
	MaxAge  int `toml:"max_log_age"`  // days
}

// SetLogger directs log messages to the configured file, rotated by size.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Infof("No log file configured, logging to stderr\n")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(l)
	logger = stdLogger{l}
}

// SetCustomLogger replaces the package logger; nil restores the default.
func SetCustomLogger(l Logger) {
	if l == nil {
		logger = stdLogger{}
		return
	}
	logger = l
}

func (s stdLogger) printf(m ModeFlag, format string, args ...interface{}) {
	log.Printf(" "+m.String()+" "+format, args...)
}

func (s stdLogger) Debugf(format string, args ...interface{}) {
	s.printf(DebugMode, format, args...)
}

func (s stdLogger) Infof(format string, args ...interface{}) {
	s.printf(InfoMode, format, args...)
}

func (s stdLogger) Warningf(format string, args ...interface{}) {
	s.printf(WarningMode, format, args...)
}

func (s stdLogger) Errorf(format string, args ...interface{}) {
	s.printf(ErrorMode, format, args...)
}

func (s stdLogger) Criticalf(format string, args ...interface{}) {
	s.printf(CriticalMode, format, args...)
}

func (s stdLogger) Shutdown() {
	if s.file != nil {
		log.Printf("Closing log file %s\n", s.file.Filename)
		s.file.Close()
	}
}
