// Package pathutil confines the program files a remote caller may load to
// the program directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/tendril/internal/constants"
)

var (
	ErrNoProgramDirs      = errors.New("loading program files is disabled")
	ErrOutsideProgramDirs = errors.New("outside the program directories")
	ErrBadProgramPath     = errors.New("invalid program path")
)

// RedactPath reduces a full path to .../<parent>/<basename> for error
// messages sent back to remote callers.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ResolveProgram maps name to a program file inside one of dirs and returns
// its absolute, symlink-free path.
//
// An absolute name must resolve inside a program directory. A relative name
// is tried in each directory in order, then against the working directory;
// the first existing file inside a program directory wins. When none exists
// the first permitted candidate is returned so the caller reports a missing
// file rather than a rejection.
func ResolveProgram(name string, dirs []string) (string, error) {
	if len(dirs) == 0 {
		return "", ErrNoProgramDirs
	}
	if name == "" || strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("%w: %q", ErrBadProgramPath, RedactPath(name))
	}

	roots := resolveDirs(dirs)
	candidates := []string{name}
	if !filepath.IsAbs(name) {
		candidates = candidates[:0]
		for _, d := range dirs {
			candidates = append(candidates, filepath.Join(d, name))
		}
		candidates = append(candidates, name)
	}

	permitted := ""
	for _, c := range candidates {
		resolved, err := resolvePath(c)
		if err != nil || !insideAny(resolved, roots) {
			continue
		}
		if info, err := os.Stat(resolved); err == nil && info.Mode().IsRegular() {
			return resolved, nil
		}
		if permitted == "" {
			permitted = resolved
		}
	}
	if permitted == "" {
		return "", fmt.Errorf("%w: %s", ErrOutsideProgramDirs, RedactPath(name))
	}
	return permitted, nil
}

// resolveDirs returns the absolute, symlink-free form of each directory that
// can be resolved.
func resolveDirs(dirs []string) []string {
	roots := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			continue
		}
		if r, err := resolveExistingParent(abs); err == nil {
			roots = append(roots, r)
		}
	}
	return roots
}

// resolvePath makes path absolute and resolves symlinks in its directory.
// The file itself need not exist.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	dir, err := resolveExistingParent(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor of
// dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

func insideAny(path string, roots []string) bool {
	for _, root := range roots {
		// The separator keeps /tmp/foo from matching /tmp/foobar.
		if path == root || strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// DefaultAllowedProgramDirs returns ~/.tendril/programs.
func DefaultAllowedProgramDirs() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{
		filepath.Join(homeDir, constants.DirName, constants.ProgramsDir),
	}, nil
}

// DefaultAllowedProgramDirsWithProjectRoot returns ~/.tendril/programs and
// <projectRoot>/.tendril/programs, in that lookup order.
func DefaultAllowedProgramDirsWithProjectRoot(projectRoot string) ([]string, error) {
	dirs, err := DefaultAllowedProgramDirs()
	if err != nil {
		return nil, err
	}
	return append(dirs, filepath.Join(projectRoot, constants.DirName, constants.ProgramsDir)), nil
}
