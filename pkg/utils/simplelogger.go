// Package utils предоставляет простой логгер с key=value полями.
//
// По умолчанию пишет в .log файл (InitLogger), сервер и тесты могут
// перенаправить вывод через SetOutput. Thread-safe через sync.Mutex.
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	logOut      io.Writer
	logFile     *os.File
	logMutex    sync.Mutex
	debugOn     bool
	initialized bool
)

// InitLogger создает/открывает .log файл в каталоге dir.
//
// Имя файла: <prefix>-YYYY-MM-DD-HH-MM.log (например, poncho-assistant-2026-10-17-15-30.log).
// Повторный вызов ничего не делает.
func InitLogger(dir, prefix string) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	if initialized {
		return nil
	}

	if dir == "" {
		dir = "."
	}
	if prefix == "" {
		prefix = "poncho-assistant"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-15-04")
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.log", prefix, timestamp))

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	logOut = f
	initialized = true

	// Пишем напрямую без Info: мьютекс уже захвачен
	writeLine(formatLine("INFO", "Logger initialized", "file", filename))

	return nil
}

// SetOutput направляет лог в произвольный writer (stderr для serve, буфер в тестах).
// nil отключает логирование.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logOut = w
}

// SetDebug включает вывод Debug сообщений.
func SetDebug(enabled bool) {
	logMutex.Lock()
	defer logMutex.Unlock()
	debugOn = enabled
}

// Info - информационное сообщение.
func Info(msg string, keyvals ...any) {
	log("INFO", msg, keyvals...)
}

// Error - сообщение об ошибке.
func Error(msg string, keyvals ...any) {
	log("ERROR", msg, keyvals...)
}

// Debug - отладочное сообщение. Пишется только после SetDebug(true).
func Debug(msg string, keyvals ...any) {
	logMutex.Lock()
	enabled := debugOn
	logMutex.Unlock()
	if !enabled {
		return
	}
	log("DEBUG", msg, keyvals...)
}

// Warn - предупреждение.
func Warn(msg string, keyvals ...any) {
	log("WARN", msg, keyvals...)
}

func log(level, msg string, keyvals ...any) {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logOut == nil {
		return
	}

	writeLine(formatLine(level, msg, keyvals...))
}

// formatLine: [YYYY-MM-DD HH:MM:SS] LEVEL: message key1=value1 key2=value2
// Непарный последний ключ отбрасывается.
func formatLine(level, msg string, keyvals ...any) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %s: %s", timestamp, level, msg)

	for i := 0; i+1 < len(keyvals); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}

	return line + "\n"
}

// writeLine вызывается под logMutex. При ошибке записи - fallback на stderr.
func writeLine(line string) {
	if _, err := io.WriteString(logOut, line); err != nil {
		fmt.Fprintf(os.Stderr, "%s", line)
		fmt.Fprintf(os.Stderr, "[LOGGER ERROR: write failed: %v]\n", err)
		return
	}

	if logFile != nil && logOut == io.Writer(logFile) {
		if err := logFile.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Sync failed: %v]\n", err)
		}
	}
}

// Close закрывает лог-файл. Вызывается через defer в main().
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logFile != nil {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Close failed: %v]\n", err)
		}
		if logOut == io.Writer(logFile) {
			logOut = nil
		}
		logFile = nil
	}
	initialized = false
}
