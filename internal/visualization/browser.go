package visualization

import (
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// OpenBrowser opens target in the user's default browser. Target is either
// an http(s) URL, such as a running server's address, or a path to a
// rendered HTML file, which is opened as an absolute file:// URL.
func OpenBrowser(target string) error {
	u, err := browserURL(target)
	if err != nil {
		return err
	}
	name, args, err := browserCommand(runtime.GOOS, u)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

func browserURL(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "file://") {
		return target, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// browserCommand returns the launcher for goos. On Windows the empty title
// argument keeps start from treating a quoted URL as the window title.
func browserCommand(goos, u string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{u}, nil
	case "darwin":
		return "open", []string{u}, nil
	case "windows":
		return "cmd", []string{"/c", "start", "", u}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
