package logger

import (
	"go.uber.org/zap"
)

// NewNamed builds a zap logger for the given environment with the service
// name attached to every entry. Development gets the human-readable console
// encoder; everything else logs JSON at info level.
func NewNamed(env, service string) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if env == "development" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return log.Named(service), nil
}
