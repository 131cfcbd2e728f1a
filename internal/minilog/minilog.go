// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package minilog

import (
	"bufio"
	"encoding/json"
	"fmt"
	golog "log"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	loggers = make(map[string]*minilogger)
	logLock sync.RWMutex
)

type minilogger struct {
	out     io.Writer
	std     *golog.Logger
	Level   Level
	Format  Format
	filters []string
}

// Init registers the default stderr logger at level/format, replacing any
// previous "stderr" logger. Called once from main after flags are parsed.
func Init(level Level, format Format) {
	AddLogger("stderr", os.Stderr, level, format)
}

// AddLogger registers a named logger that only prints events at level or
// higher. output is typically os.Stderr or a log file.
func AddLogger(name string, output io.Writer, level Level, format Format) {
	logLock.Lock()
	defer logLock.Unlock()

	loggers[name] = &minilogger{
		out:    output,
		std:    golog.New(output, "", 0),
		Level:  level,
		Format: format,
	}
}

// DelLogger removes a named logger added with AddLogger.
func DelLogger(name string) {
	logLock.Lock()
	defer logLock.Unlock()

	delete(loggers, name)
}

// WillLog reports whether any registered logger would emit a record at
// level. Useful when the message itself is expensive to build.
func WillLog(level Level) bool {
	logLock.RLock()
	defer logLock.RUnlock()

	for _, l := range loggers {
		if l.Level <= level {
			return true
		}
	}
	return false
}

// LogAll reads i line by line, logging each line at level under name, until
// EOF. Starts a goroutine and returns immediately.
func LogAll(i io.Reader, level Level, name string) {
	go func() {
		r := bufio.NewReader(i)
		for {
			d, err := r.ReadString('\n')
			if d := strings.TrimSpace(d); d != "" {
				logf(level, name, "%s", d)
			}
			if err != nil {
				return
			}
		}
	}()
}

func caller() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return ""
	}
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", short, line)
}

func (l *minilogger) emit(level Level, name, msg string) {
	for _, f := range l.filters {
		if strings.Contains(msg, f) {
			return
		}
	}

	switch l.Format {
	case JSON:
		rec := struct {
			Time   string `json:"time"`
			Level  string `json:"level"`
			Caller string `json:"caller,omitempty"`
			Msg    string `json:"msg"`
		}{
			Time:   time.Now().UTC().Format(time.RFC3339Nano),
			Level:  level.String(),
			Caller: name,
			Msg:    msg,
		}
		b, err := json.Marshal(rec)
		if err != nil {
			l.std.Println(msg)
			return
		}
		l.std.Println(string(b))
	default:
		if name == "" {
			name = caller()
		}
		l.std.Printf("%s %s: %s", strings.ToUpper(level.String()), name, msg)
	}
}

func logf(level Level, name, format string, arg ...interface{}) {
	logLock.RLock()
	defer logLock.RUnlock()

	msg := fmt.Sprintf(format, arg...)
	for _, logger := range loggers {
		if logger.Level <= level {
			logger.emit(level, name, msg)
		}
	}
}

func Debug(format string, arg ...interface{}) { logf(DEBUG, "", format, arg...) }
func Info(format string, arg ...interface{})  { logf(INFO, "", format, arg...) }
func Warn(format string, arg ...interface{})  { logf(WARN, "", format, arg...) }
func Error(format string, arg ...interface{}) { logf(ERROR, "", format, arg...) }

func Fatal(format string, arg ...interface{}) {
	logf(FATAL, "", format, arg...)
	os.Exit(1)
}

func Errorln(arg ...interface{}) { logf(ERROR, "", "%s", fmt.Sprint(arg...)) }
func Fatalln(arg ...interface{}) {
	logf(FATAL, "", "%s", fmt.Sprint(arg...))
	os.Exit(1)
}
