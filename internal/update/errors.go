package update

import (
	"context"
	"errors"
	"fmt"
	"net"

	appErrors "skylight/internal/errors"
)

// ErrTimeout marks a network failure caused by an elapsed deadline.
var ErrTimeout = errors.New("update: operation timed out")

func configurationError(reason string) error {
	return appErrors.New(appErrors.CodeConfiguration, reason, nil)
}

func networkError(msg string, err error) error {
	if isDeadline(err) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return appErrors.New(appErrors.CodeNetwork, msg, err)
}

func parseError(msg string, err error) error {
	return appErrors.New(appErrors.CodeParse, msg, err)
}

func sequencingError(op string, phase Phase) error {
	return appErrors.New(appErrors.CodeSequencing, fmt.Sprintf("cannot %s while %s", op, phase), nil)
}

func staleSessionError(op string) error {
	return appErrors.New(appErrors.CodeSequencing, fmt.Sprintf("%s result discarded: a newer check superseded it", op), nil)
}

func sizeMismatchError(expected, actual uint64) error {
	return appErrors.New(appErrors.CodeSizeMismatch, fmt.Sprintf("artifact size mismatch: expected %d bytes, got %d", expected, actual), nil)
}

func digestMismatchError(msg string) error {
	return appErrors.New(appErrors.CodeDigestMismatch, msg, nil)
}

func installDispatchError(msg string, err error) error {
	return appErrors.New(appErrors.CodeInstallDispatch, msg, err)
}

func unsupportedPlatformError(platform PlatformKind) error {
	return appErrors.New(appErrors.CodeUnsupportedPlatform, fmt.Sprintf("unsupported platform: %s", platform), nil)
}

// IsTimeout reports whether err is a network failure caused by a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) || isDeadline(err)
}

func isDeadline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
