package update

import "runtime"

// PlatformKind identifies the operating system family an artifact targets.
type PlatformKind int

const (
	PlatformUnknown PlatformKind = iota
	PlatformWindows
	PlatformMac
	PlatformLinux
)

// String returns the platform name.
func (p PlatformKind) String() string {
	switch p {
	case PlatformWindows:
		return "windows"
	case PlatformMac:
		return "mac"
	case PlatformLinux:
		return "linux"
	default:
		return "unknown"
	}
}

// PlatformFromGOOS maps a GOOS value onto a platform kind.
func PlatformFromGOOS(goos string) PlatformKind {
	switch goos {
	case "windows":
		return PlatformWindows
	case "darwin":
		return PlatformMac
	case "linux":
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}

// DetectPlatform returns the platform the process is running on.
func DetectPlatform() PlatformKind {
	return PlatformFromGOOS(runtime.GOOS)
}

// ManifestFileName returns the manifest published for the platform.
func ManifestFileName(p PlatformKind) (string, error) {
	switch p {
	case PlatformWindows:
		return "latest.yml", nil
	case PlatformMac:
		return "latest-mac.yml", nil
	case PlatformLinux:
		return "latest-linux.yml", nil
	default:
		return "", unsupportedPlatformError(p)
	}
}
