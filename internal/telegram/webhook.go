package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookServer receives updates Telegram pushes to a public HTTPS endpoint,
// as the alternative to long polling. TLS termination is expected to happen
// in front of this listener.
type WebhookServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewWebhookServer builds a server listening on addr that decodes update
// POSTs at path and hands them to dispatch. dispatch must not block: the
// handler has to return 200 promptly or Telegram re-delivers the update.
func NewWebhookServer(addr, path string, dispatch func(Update), logger *zap.Logger) *WebhookServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST(path, func(c *gin.Context) {
		var update Update
		if err := c.ShouldBindJSON(&update); err != nil {
			logger.Warn("rejecting malformed webhook update", zap.Error(err))
			c.Status(http.StatusBadRequest)
			return
		}
		dispatch(update)
		c.Status(http.StatusOK)
	})

	return &WebhookServer{
		srv:    &http.Server{Addr: addr, Handler: engine},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (w *WebhookServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.srv.ListenAndServe()
	}()
	w.logger.Info("webhook listener started", zap.String("addr", w.srv.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
