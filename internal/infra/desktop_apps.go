package infra

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// desktopCacheTTL bounds how stale the parsed application list may get.
const desktopCacheTTL = 30 * time.Second

// systemCategories mark an entry as system-level rather than user-facing.
var systemCategories = map[string]bool{
	"System":   true,
	"Settings": true,
	"Monitor":  true,
}

// DesktopRegistryImpl implements domain.AppRegistry from XDG .desktop entries.
type DesktopRegistryImpl struct {
	dirs   []string
	logger *zap.Logger

	mu       sync.Mutex
	apps     []domain.InstalledApp
	loadedAt time.Time
}

// NewDesktopRegistry scans the standard XDG application directories.
func NewDesktopRegistry(logger *zap.Logger) *DesktopRegistryImpl {
	return NewDesktopRegistryWithDirs(applicationDirs(), logger)
}

// NewDesktopRegistryWithDirs creates a registry over custom directories (for testing).
// Earlier directories take precedence for the same desktop file name.
func NewDesktopRegistryWithDirs(dirs []string, logger *zap.Logger) *DesktopRegistryImpl {
	return &DesktopRegistryImpl{dirs: dirs, logger: logger}
}

func applicationDirs() []string {
	home := GetRealUserHome()
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = ExpandHome(home, "~/.local/share")
	}
	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}

	dirs := []string{filepath.Join(dataHome, "applications")}
	for _, d := range strings.Split(dataDirs, ":") {
		if d != "" {
			dirs = append(dirs, filepath.Join(d, "applications"))
		}
	}
	dirs = append(dirs,
		ExpandHome(home, "~/.local/share/flatpak/exports/share/applications"),
		"/var/lib/flatpak/exports/share/applications",
		"/var/lib/snapd/desktop/applications",
	)
	return dirs
}

// Label returns the Name of the entry whose identifier matches id.
func (r *DesktopRegistryImpl) Label(id domain.AppID) (string, error) {
	apps, err := r.Installed()
	if err != nil {
		return "", err
	}
	for _, app := range apps {
		if strings.EqualFold(string(app.ID), string(id)) {
			return app.Name, nil
		}
	}
	return "", domain.ErrAppNotFound
}

// Installed returns every visible application entry, system ones included.
func (r *DesktopRegistryImpl) Installed() ([]domain.InstalledApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.apps != nil && time.Since(r.loadedAt) < desktopCacheTTL {
		return append([]domain.InstalledApp(nil), r.apps...), nil
	}

	seen := make(map[string]bool)
	apps := []domain.InstalledApp{}
	for _, dir := range r.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.desktop"))
		if err != nil {
			continue
		}
		for _, path := range matches {
			name := filepath.Base(path)
			if seen[name] {
				continue
			}
			seen[name] = true

			app, ok, err := parseDesktopFile(path)
			if err != nil {
				r.logger.Debug("skipping unreadable desktop entry",
					zap.String("path", path),
					zap.Error(err))
				continue
			}
			if ok {
				apps = append(apps, app)
			}
		}
	}

	r.apps = apps
	r.loadedAt = time.Now()
	return append([]domain.InstalledApp(nil), apps...), nil
}

// Invalidate drops the cached list so the next call rescans.
func (r *DesktopRegistryImpl) Invalidate() {
	r.mu.Lock()
	r.apps = nil
	r.mu.Unlock()
}

// parseDesktopFile reads the [Desktop Entry] group. ok is false for
// entries that are not launchable applications.
func parseDesktopFile(path string) (app domain.InstalledApp, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return app, false, err
	}
	defer f.Close()

	fields := make(map[string]string)
	inEntry := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		// Localized keys (Name[de]) are ignored.
		if strings.Contains(key, "[") {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return app, false, err
	}

	if fields["Type"] != "Application" || fields["Name"] == "" || fields["Hidden"] == "true" {
		return app, false, nil
	}

	id := desktopAppID(fields, path)
	if id == "" {
		return app, false, nil
	}

	return domain.InstalledApp{
		Name:   fields["Name"],
		ID:     domain.AppID(id),
		System: isSystemEntry(fields),
	}, true, nil
}

// desktopAppID matches what the window tracker reports: the WM class when
// declared, otherwise the executable name.
func desktopAppID(fields map[string]string, path string) string {
	if class := fields["StartupWMClass"]; class != "" {
		return strings.ToLower(class)
	}
	if exec := execBasename(fields["Exec"]); exec != "" {
		return strings.ToLower(exec)
	}
	return strings.ToLower(strings.TrimSuffix(filepath.Base(path), ".desktop"))
}

// execBasename returns the program name of an Exec line, skipping env
// assignments and an "env" wrapper.
func execBasename(execLine string) string {
	for _, tok := range strings.Fields(execLine) {
		tok = strings.Trim(tok, `"`)
		if tok == "env" || strings.Contains(tok, "=") {
			continue
		}
		if strings.HasPrefix(tok, "%") {
			return ""
		}
		return filepath.Base(tok)
	}
	return ""
}

func isSystemEntry(fields map[string]string) bool {
	if fields["NoDisplay"] == "true" {
		return true
	}
	for _, c := range strings.Split(fields["Categories"], ";") {
		if systemCategories[strings.TrimSpace(c)] {
			return true
		}
	}
	return false
}

// ExpandHome expands ~ to home.
func ExpandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}

var _ domain.AppRegistry = (*DesktopRegistryImpl)(nil)
