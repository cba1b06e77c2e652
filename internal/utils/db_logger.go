package utils

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

// CustomGormLogger drops SQL matching any ignored pattern and prefixes the
// rest with the application function that issued it
type CustomGormLogger struct {
	logger.Interface
	ignoredQueryPatterns []string
}

// NewCustomGormLogger wraps l, ignoring statements containing any of ignoredPatterns
func NewCustomGormLogger(l logger.Interface, ignoredPatterns ...string) *CustomGormLogger {
	return &CustomGormLogger{
		Interface:            l,
		ignoredQueryPatterns: ignoredPatterns,
	}
}

// LogMode implements logger.Interface
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &CustomGormLogger{
		Interface:            l.Interface.LogMode(level),
		ignoredQueryPatterns: l.ignoredQueryPatterns,
	}
}

// Trace implements logger.Interface. Ignored statements are still reported
// when they fail.
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()

	if err == nil && l.ignored(sql) {
		return
	}

	caller := findCaller()
	l.Interface.Trace(ctx, begin, func() (string, int64) {
		if caller != "" {
			return fmt.Sprintf("[%s] %s", caller, sql), rows
		}
		return sql, rows
	}, err)
}

func (l *CustomGormLogger) ignored(sql string) bool {
	for _, pattern := range l.ignoredQueryPatterns {
		if strings.Contains(sql, pattern) {
			return true
		}
	}
	return false
}

// findCaller returns "pkg.Func:line" for the first frame outside gorm and this file
func findCaller() string {
	for i := 2; i < 15; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "gorm.io") ||
			strings.Contains(file, "internal/utils/db_logger.go") {
			continue
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			return fmt.Sprintf("%s:%d", file, line)
		}
		name := fn.Name()
		if idx := strings.LastIndexByte(name, '/'); idx != -1 {
			name = name[idx+1:]
		}
		return fmt.Sprintf("%s:%d", name, line)
	}
	return ""
}
