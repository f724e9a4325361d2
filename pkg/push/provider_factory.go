package push

import (
	"context"

	"go.uber.org/zap"

	"wavelink-backend/pkg/env"
	"wavelink-backend/pkg/logger"
)

// NewServiceFromEnv builds a push service with whichever providers are
// configured. A service with zero providers is valid; pushes become no-ops.
func NewServiceFromEnv(ctx context.Context) *Service {
	var providers []Provider

	if credFile := env.GetString("FCM_CREDENTIALS_FILE", ""); credFile != "" {
		fcm, err := NewFCMProvider(ctx, credFile)
		if err != nil {
			logger.Warn("FCM provider disabled", zap.Error(err))
		} else {
			providers = append(providers, fcm)
			logger.Info("FCM push provider enabled")
		}
	}

	if keyFile := env.GetString("APNS_AUTH_KEY_FILE", ""); keyFile != "" {
		apns, err := NewAPNSProvider(&APNSConfig{
			AuthKeyFile: keyFile,
			KeyID:       env.GetString("APNS_KEY_ID", ""),
			TeamID:      env.GetString("APNS_TEAM_ID", ""),
			Topic:       env.GetString("APNS_TOPIC", ""),
			Production:  env.GetString("ENV", "development") == "production",
		})
		if err != nil {
			logger.Warn("APNs provider disabled", zap.Error(err))
		} else {
			providers = append(providers, apns)
			logger.Info("APNs push provider enabled")
		}
	}

	return NewService(providers...)
}
