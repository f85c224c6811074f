// Package observer drives the system tray surface: menu construction,
// periodic state refresh and user-visible connectivity notifications.
package observer

import (
	"sort"

	"clashflux-go/internal/control"
)

// Group is one user-selectable proxy group prepared for menu rendering.
type Group struct {
	Name string
	Now  string
	All  []string
}

// pinnedGroups render before everything else, in this order.
var pinnedGroups = []string{"GLOBAL", "Proxy"}

// SelectorGroups extracts the selectable groups from a /proxies snapshot and
// orders them for display: the pinned groups first, the rest alphabetically.
func SelectorGroups(proxies map[string]control.Proxy) []Group {
	var groups []Group
	for name, p := range proxies {
		if !p.IsSelector() {
			continue
		}
		groups = append(groups, Group{Name: name, Now: p.Now, All: p.All})
	}

	rank := func(name string) int {
		for i, pinned := range pinnedGroups {
			if name == pinned {
				return i
			}
		}
		return len(pinnedGroups)
	}
	sort.Slice(groups, func(i, j int) bool {
		ri, rj := rank(groups[i].Name), rank(groups[j].Name)
		if ri != rj {
			return ri < rj
		}
		return groups[i].Name < groups[j].Name
	})
	return groups
}
