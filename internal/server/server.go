package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// ListenAndServe запускает HTTP сервер и гасит его при отмене ctx.
func ListenAndServe(ctx context.Context, addr string, r *Router) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Info("HTTP server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	utils.Info("HTTP server stopped")
	return nil
}
