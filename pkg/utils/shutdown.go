// Package utils: graceful shutdown по SIGINT/SIGTERM.
//
// Использование:
//
//	ctx, shutdown := utils.SetupGracefulShutdownWithContext()
//	defer shutdown()
//
// Отмена контекста прерывает ожидание run (опрос статуса уважает ctx),
// а shutdown() закрывает лог-файл.
package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupGracefulShutdown отменяет контекст при получении сигнала.
// Возвращает функцию очистки для defer.
func SetupGracefulShutdown(cancel context.CancelFunc) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			Info("Received signal, shutting down gracefully", "signal", sig.String())
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
		Close()
	}
}

// SetupGracefulShutdownWithContext создаёт контекст и настраивает graceful shutdown.
func SetupGracefulShutdownWithContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	shutdown := SetupGracefulShutdown(cancel)
	return ctx, func() {
		shutdown()
		cancel()
	}
}
