package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/adapters/transport"
	"github.com/satriahrh/scenery-voice/internal/auth"
	"github.com/satriahrh/scenery-voice/internal/websocket"
)

const serviceName = "scenery-voice-stub"

// StreamPath is the voice stream endpoint
const StreamPath = "/voice/stream"

// InitRoutes initializes all API routes. A nil signer accepts unauthenticated
// streams; a nil gatherer leaves /metrics unregistered.
func InitRoutes(e *echo.Echo, hub *websocket.Hub, signer *auth.Signer, gatherer prometheus.Gatherer, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:   "ok",
			Service:  serviceName,
			Sessions: hub.ClientCount(),
		})
	})

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	e.GET(StreamPath, func(c echo.Context) error {
		return voiceStream(hub, signer, c, logger)
	})
}

// voiceStream authenticates one stream request and hands it to the hub
func voiceStream(hub *websocket.Hub, signer *auth.Signer, c echo.Context, logger *zap.Logger) error {
	sessionID := c.QueryParam(transport.SessionQueryParam)
	if sessionID == "" {
		logger.Warn("Voice stream rejected: missing session id")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_session",
			Message: "session_id query parameter is required",
		})
	}

	if signer != nil {
		token, ok := bearerToken(c.Request())
		if !ok {
			logger.Warn("Voice stream rejected: missing token", zap.String("session_id", sessionID))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := signer.ValidateToken(token)
		if err != nil {
			logger.Warn("Voice stream rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		if claims.SessionID != sessionID {
			logger.Warn("Voice stream rejected: session mismatch",
				zap.String("session_id", sessionID),
				zap.String("token_session_id", claims.SessionID))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "session_mismatch",
				Message: "Token was not issued for this session",
			})
		}
	}

	logger.Info("Voice stream accepted", zap.String("session_id", sessionID))
	return websocket.HandleWebSocket(hub, c, sessionID)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
