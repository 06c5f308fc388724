package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

const UntitledBase = "Untitled document"

var untitledPattern = regexp.MustCompile(`^` + regexp.QuoteMeta(UntitledBase) + `(?: \((\d+)\))?$`)

// maxUntitledSuffix is the largest suffix NextUntitledName counts up from.
const maxUntitledSuffix = 1_000_000

// NextUntitledName picks the placeholder name for a new project given the owner's
// existing names. The bare base name counts as suffix 1; the result is max(suffix)+1.
// Once the highest suffix reaches maxUntitledSuffix it takes the lowest unused
// suffix instead.
func NextUntitledName(existing []string) string {
	taken := make(map[int]bool, len(existing))
	maxSuffix := 0
	for _, name := range existing {
		m := untitledPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n := 1
		if m[1] != "" {
			v, err := strconv.Atoi(m[1])
			if err != nil || v > maxUntitledSuffix {
				v = maxUntitledSuffix + 1
			}
			n = v
		}
		taken[n] = true
		maxSuffix = max(maxSuffix, n)
	}
	switch {
	case maxSuffix == 0:
		return UntitledBase
	case maxSuffix < maxUntitledSuffix:
		return untitledName(maxSuffix + 1)
	}
	for n := 1; ; n++ {
		if !taken[n] {
			return untitledName(n)
		}
	}
}

func untitledName(n int) string {
	if n <= 1 {
		return UntitledBase
	}
	return fmt.Sprintf("%s (%d)", UntitledBase, n)
}

// IsUntitledName reports whether name is a generated placeholder.
func IsUntitledName(name string) bool {
	return untitledPattern.MatchString(name)
}
