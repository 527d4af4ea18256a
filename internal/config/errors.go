package config

import (
	"errors"
)

// ErrConfiguration is wrapped by every error that must stop the process before serving.
var ErrConfiguration = errors.New("configuration error")
