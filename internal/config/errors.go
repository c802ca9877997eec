package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoGrid is returned when no grid is given on the command line or
	// in the configuration file.
	ErrNoGrid = errors.New("no grid specified: use --grid or list grids in the config file")

	// ErrInvalidGridID is returned for a grid id that is not positive.
	ErrInvalidGridID = errors.New("invalid grid id: must be positive")

	// ErrUnknownStrategy is returned for a strategy name that is not supported.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrNoClient is returned when there is no client to extract from.
	ErrNoClient = errors.New("no client: use --fixture to replay a scripted client")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidAttempts is returned when a clipboard or captcha attempt
	// budget is not positive.
	ErrInvalidAttempts = errors.New("invalid attempts: must be positive")

	// ErrInvalidTimeout is returned when a polling interval or timeout is
	// not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when a delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrUnknownFormat is returned for an unsupported report format.
	ErrUnknownFormat = errors.New("unknown report format")

	// ErrUnknownEngine is returned for an unsupported recognition engine.
	ErrUnknownEngine = errors.New("unknown recognition engine")

	// ErrRemoteURLRequired is returned when the remote engine has no endpoint.
	ErrRemoteURLRequired = errors.New("remote recognition engine needs a url")
)
