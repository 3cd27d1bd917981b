package loader

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/chatshape/internal/store"
)

// TeardownScript returns an idempotent script that empties every entity
// table, children first. On postgres it also restarts identity sequences.
// Statements end at line-ending semicolons so store.ExecScript can run it.
func TeardownScript(driver, schema string) string {
	tables := slices.Clone(store.Tables)
	slices.Reverse(tables)

	var b strings.Builder
	b.WriteString("-- chatshape teardown\n")
	b.WriteString("-- Empties every synthetic entity table. Safe to run repeatedly.\n")
	switch driver {
	case store.DriverPostgres:
		qualified := slices.Clone(tables)
		if schema != "" {
			fmt.Fprintf(&b, "-- schema: %s\n", schema)
			for i, t := range tables {
				qualified[i] = quoteIdent(schema) + "." + t
			}
		}
		fmt.Fprintf(&b, "TRUNCATE TABLE %s RESTART IDENTITY;\n", strings.Join(qualified, ", "))
	default:
		b.WriteString("-- sqlite ids are explicit; there are no sequences to reset.\n")
		for _, t := range tables {
			fmt.Fprintf(&b, "DELETE FROM %s;\n", t)
		}
	}
	return b.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
