// Package logx provides the leveled print helpers used throughout
// Tephra-Go: a thin gate in front of log/slog so callers write
// logx.PrintfDebug("...") and the line simply does not run unless
// UserLevel permits it.
package logx

import (
	"fmt"
	"log/slog"
)

// UserLevel is the minimum level that will be printed. Defaults to
// [slog.LevelWarn]; a //go:build release-tagged binary could lower the
// noise further, but Tephra-Go ships one build, so this is a plain var
// rather than the teacher's build-tag split.
var UserLevel = slog.LevelWarn

// Print is equivalent to [fmt.Print], gated by the given level against
// UserLevel.
func Print(level slog.Level, a ...any) (n int, err error) {
	if UserLevel > level {
		return 0, nil
	}
	return fmt.Print(a...)
}

// PrintDebug is [Print] at [slog.LevelDebug].
func PrintDebug(a ...any) (n int, err error) { return Print(slog.LevelDebug, a...) }

// PrintInfo is [Print] at [slog.LevelInfo].
func PrintInfo(a ...any) (n int, err error) { return Print(slog.LevelInfo, a...) }

// PrintWarn is [Print] at [slog.LevelWarn].
func PrintWarn(a ...any) (n int, err error) { return Print(slog.LevelWarn, a...) }

// PrintError is [Print] at [slog.LevelError].
func PrintError(a ...any) (n int, err error) { return Print(slog.LevelError, a...) }

// Println is equivalent to [fmt.Println], gated by level.
func Println(level slog.Level, a ...any) (n int, err error) {
	if UserLevel > level {
		return 0, nil
	}
	return fmt.Println(a...)
}

// PrintlnDebug is [Println] at [slog.LevelDebug].
func PrintlnDebug(a ...any) (n int, err error) { return Println(slog.LevelDebug, a...) }

// PrintlnInfo is [Println] at [slog.LevelInfo].
func PrintlnInfo(a ...any) (n int, err error) { return Println(slog.LevelInfo, a...) }

// PrintlnWarn is [Println] at [slog.LevelWarn].
func PrintlnWarn(a ...any) (n int, err error) { return Println(slog.LevelWarn, a...) }

// PrintlnError is [Println] at [slog.LevelError].
func PrintlnError(a ...any) (n int, err error) { return Println(slog.LevelError, a...) }

// Printf is equivalent to [fmt.Printf] (newline-terminated), gated by level.
func Printf(level slog.Level, format string, a ...any) (n int, err error) {
	if UserLevel > level {
		return 0, nil
	}
	return fmt.Println(fmt.Sprintf(format, a...))
}

// PrintfDebug is [Printf] at [slog.LevelDebug].
func PrintfDebug(format string, a ...any) (n int, err error) { return Printf(slog.LevelDebug, format, a...) }

// PrintfInfo is [Printf] at [slog.LevelInfo].
func PrintfInfo(format string, a ...any) (n int, err error) { return Printf(slog.LevelInfo, format, a...) }

// PrintfWarn is [Printf] at [slog.LevelWarn].
func PrintfWarn(format string, a ...any) (n int, err error) { return Printf(slog.LevelWarn, format, a...) }

// PrintfError is [Printf] at [slog.LevelError].
func PrintfError(format string, a ...any) (n int, err error) { return Printf(slog.LevelError, format, a...) }

// Logger is the package-wide structured logger, usable directly for
// call sites that want slog's key-value attributes rather than the
// Print family's plain formatting.
var Logger = slog.Default()
