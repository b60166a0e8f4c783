package handlers

import (
	"errors"
	"fmt"
	"strings"

	"newsroll/internal/catalog"
)

// ErrUnknownTab is returned for a --tabs value the catalog does not define.
var ErrUnknownTab = errors.New("unknown tab")

// ParseTabs flattens repeated and comma separated --tabs values, keeping
// first occurrence order. No values selects every catalog tab.
func ParseTabs(c *catalog.Catalog, values []string) ([]string, error) {
	var tabs []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			tab := strings.ToLower(strings.TrimSpace(part))
			if tab == "" || seen[tab] {
				continue
			}
			if !c.ValidTab(tab) {
				return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownTab, tab, strings.Join(c.Tabs, ", "))
			}
			seen[tab] = true
			tabs = append(tabs, tab)
		}
	}
	if len(tabs) == 0 {
		return append([]string(nil), c.Tabs...), nil
	}
	return tabs, nil
}
