package rlog

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mattn/go-isatty"
)

const flags = log.Ldate | log.Ltime | log.Lmsgprefix

var (
	debug = log.New(io.Discard, "[DBG] ", flags)
	info  = log.New(os.Stderr, "[INF] ", flags)
	warn  = log.New(os.Stderr, "[WRN] ", flags)
	err   = log.New(os.Stderr, "[ERR] ", flags)
)

func init() {
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return
	}

	const reset = "\033[0m"
	for logger, color := range map[*log.Logger]string{
		debug: "\033[90m",
		info:  "\033[36m",
		warn:  "\033[33m",
		err:   "\033[31m",
	} {
		logger.SetPrefix(color + logger.Prefix() + reset)
	}
}

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) MarshalText() (text []byte, err error) {
	return []byte(l), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	switch v := Level(text); v {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		*l = v
		return nil
	default:
		return fmt.Errorf("invalid log level %q, valid values: debug, info, warn, error", text)
	}
}

// SetLevel discards messages below the passed level.
func SetLevel(level Level) {
	var loggers []*log.Logger
	switch level {
	case LevelDebug:
		loggers = []*log.Logger{debug, info, warn, err}
	case LevelInfo:
		loggers = []*log.Logger{info, warn, err}
	case LevelWarn:
		loggers = []*log.Logger{warn, err}
	default:
		loggers = []*log.Logger{err}
	}

	for _, l := range []*log.Logger{debug, info, warn, err} {
		l.SetOutput(io.Discard)
	}
	for _, l := range loggers {
		l.SetOutput(os.Stderr)
	}
}

func Debug(v ...any)                 { debug.Println(v...) }
func Debugf(format string, v ...any) { debug.Printf(format, v...) }

func Info(v ...any)                 { info.Println(v...) }
func Infof(format string, v ...any) { info.Printf(format, v...) }

func Warn(v ...any)                 { warn.Println(v...) }
func Warnf(format string, v ...any) { warn.Printf(format, v...) }

func Error(v ...any)                 { err.Println(v...) }
func Errorf(format string, v ...any) { err.Printf(format, v...) }
