package services

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates the structured logger for a binary. Production config by
// default; APP_ENV=development switches to the human-readable encoder.
func NewLogger(serviceName string) *zap.Logger {
	if os.Getenv("APP_ENV") == "development" {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.InitialFields = map[string]interface{}{"service": serviceName}
		logger, err := config.Build()
		if err != nil {
			panic(err)
		}
		return logger
	}

	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.InitialFields = map[string]interface{}{"service": serviceName}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
