package generate

import (
	"sort"
	"strings"

	"github.com/roach88/chatshape/internal/failure"
)

// Band fixes the target volume of one generation run.
type Band struct {
	Name          string `json:"name"`
	Users         int64  `json:"users"`
	Conversations int64  `json:"conversations"`
	// MessageBudget bounds the total messages across all conversations.
	MessageBudget int64 `json:"message_budget"`
}

// Volume bands. Smoke is sized for CI end-to-end runs.
var (
	BandSmoke   = Band{Name: "smoke", Users: 50, Conversations: 60, MessageBudget: 2_000}
	BandDev     = Band{Name: "dev", Users: 1_000, Conversations: 2_000, MessageBudget: 50_000}
	BandStaging = Band{Name: "staging", Users: 100_000, Conversations: 200_000, MessageBudget: 5_000_000}
	BandPerf    = Band{Name: "perf", Users: 10_000_000, Conversations: 20_000_000, MessageBudget: 500_000_000}
)

var bands = map[string]Band{
	BandSmoke.Name:   BandSmoke,
	BandDev.Name:     BandDev,
	BandStaging.Name: BandStaging,
	BandPerf.Name:    BandPerf,
}

// BandNames lists the valid band names.
func BandNames() []string {
	names := make([]string, 0, len(bands))
	for name := range bands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseBand resolves a band by name.
func ParseBand(name string) (Band, error) {
	b, ok := bands[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Band{}, failure.Configuration("unknown band (want "+strings.Join(BandNames(), "|")+")", name)
	}
	return b, nil
}
