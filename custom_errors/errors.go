package custom_errors

import "errors"

var (
	ErrJobNotFound           = errors.New("job not found")
	ErrRecurringJobNotFound  = errors.New("recurring job not found")
	ErrHandlerNotFound       = errors.New("handler not found")
	ErrHandlerExists         = errors.New("handler already registered")
	ErrUnsupportedDriver     = errors.New("unsupported driver")
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrJobLockLost           = errors.New("job lock lost")
	ErrInvalidStatus         = errors.New("invalid job status transition")
)
