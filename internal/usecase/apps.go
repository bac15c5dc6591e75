package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// InstalledApplications lists user-facing apps sorted by name, with
// system-level entries left out.
func InstalledApplications(registry domain.AppRegistry) ([]domain.InstalledApp, error) {
	all, err := registry.Installed()
	if err != nil {
		return nil, fmt.Errorf("failed to list installed applications: %w", err)
	}

	apps := make([]domain.InstalledApp, 0, len(all))
	for _, app := range all {
		if app.System {
			continue
		}
		apps = append(apps, app)
	}

	sort.SliceStable(apps, func(i, j int) bool {
		a, b := strings.ToLower(apps[i].Name), strings.ToLower(apps[j].Name)
		if a != b {
			return a < b
		}
		return apps[i].ID < apps[j].ID
	})
	return apps, nil
}
