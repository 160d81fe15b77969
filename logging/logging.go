// Package logging wires goat's diagnostic output to the host syslog
// under a fixed identity, or to a file or stderr, the way smtpd's
// logging.go picks a destination for the SMTP daemon.
package logging

import (
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"regexp"
	"strconv"
)

// identity is the fixed syslog tag goat logs under. Per spec.md §6
// ("logging goes to the host syslog under a fixed identity") this is
// not configurable.
const identity = "goat:"

// Config selects where logging goes and which log.Logger flags apply.
type Config struct {
	File           string // a file to log to; takes priority over syslog
	FileMode       string // octal file mode, e.g. "0644"
	SyslogFacility string // a syslog facility name; set to enable syslog
	Date           bool
	Time           bool
	Microseconds   bool
	SourceFile     bool
}

// syslogWriter is an io.WriteCloser that forwards to syslog at the
// priority named in a "[LEVEL] " prefix written by the standard
// library's log package, stripping both the prefix and goat's own tag
// before handing the message to syslog (which adds its own).
type syslogWriter struct {
	w *syslog.Writer
}

var facilityMap = map[string]syslog.Priority{
	"kern":     syslog.LOG_KERN,
	"user":     syslog.LOG_USER,
	"mail":     syslog.LOG_MAIL,
	"daemon":   syslog.LOG_DAEMON,
	"auth":     syslog.LOG_AUTH,
	"syslog":   syslog.LOG_SYSLOG,
	"lpr":      syslog.LOG_LPR,
	"news":     syslog.LOG_NEWS,
	"uucp":     syslog.LOG_UUCP,
	"cron":     syslog.LOG_CRON,
	"authpriv": syslog.LOG_AUTHPRIV,
	"ftp":      syslog.LOG_FTP,
	"local0":   syslog.LOG_LOCAL0,
	"local1":   syslog.LOG_LOCAL1,
	"local2":   syslog.LOG_LOCAL2,
	"local3":   syslog.LOG_LOCAL3,
	"local4":   syslog.LOG_LOCAL4,
	"local5":   syslog.LOG_LOCAL5,
	"local6":   syslog.LOG_LOCAL6,
	"local7":   syslog.LOG_LOCAL7,
}

func newSyslogWriter(facility string) (*syslogWriter, error) {
	f := syslog.LOG_DAEMON
	if ff, ok := facilityMap[facility]; ok {
		f = ff
	}

	w, err := syslog.New(f|syslog.LOG_INFO, identity)
	if err != nil {
		return nil, err
	}
	return &syslogWriter{w: w}, nil
}

func (s *syslogWriter) Close() error {
	return s.w.Close()
}

var deletePrefix = regexp.MustCompile(identity)
var replaceLevel = regexp.MustCompile(`\[[A-Z]+\] `)

func (s *syslogWriter) Write(p []byte) (n int, err error) {
	stripped := deletePrefix.ReplaceAllString(string(p), "")
	level := ""
	tolog := replaceLevel.ReplaceAllStringFunc(stripped, func(l string) string {
		level = l
		return ""
	})

	switch level {
	case "[DEBUG] ":
		s.w.Debug(tolog)
	case "[INFO] ":
		s.w.Info(tolog)
	case "[NOTICE] ":
		s.w.Notice(tolog)
	case "[WARNING] ", "[WARN] ":
		s.w.Warning(tolog)
	case "[ERROR] ", "[ERR] ":
		s.w.Err(tolog)
	case "[CRIT] ":
		s.w.Crit(tolog)
	case "[ALERT] ":
		s.w.Alert(tolog)
	case "[EMERG] ":
		s.w.Emerg(tolog)
	default:
		s.w.Notice(tolog)
	}
	return len(p), nil
}

// New builds a *log.Logger per c: a file if File is set, else syslog
// if SyslogFacility is set, else stderr. The returned io.Closer must
// be closed (if non-nil) when the logger is no longer needed.
func New(c Config) (*log.Logger, io.Closer, error) {
	flags := 0
	if c.Date {
		flags |= log.Ldate
	}
	if c.Time {
		flags |= log.Ltime
	}
	if c.Microseconds {
		flags |= log.Lmicroseconds
	}
	if c.SourceFile {
		flags |= log.Lshortfile
	}

	if c.File != "" {
		mode := os.FileMode(0644)
		if c.FileMode != "" {
			m, err := strconv.ParseInt(c.FileMode, 8, 32)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing file logging mode: %w", err)
			}
			mode = os.FileMode(m)
		}
		file, err := os.OpenFile(c.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return nil, nil, err
		}
		return log.New(file, identity, flags), file, nil
	}

	if c.SyslogFacility != "" {
		w, err := newSyslogWriter(c.SyslogFacility)
		if err != nil {
			return nil, nil, err
		}
		return log.New(w, identity, flags), w, nil
	}

	return log.New(os.Stderr, identity, flags), nil, nil
}
