package database

import (
	"fmt"
	"strings"
)

// DefaultTablePrefix is the prefix used by the shipped migrations.
const DefaultTablePrefix = "wh_"

// Tables resolves the physical table names of the coordination schema for a prefix.
type Tables struct {
	Prefix                 string
	EventStore             string
	Inbox                  string
	Outbox                 string
	PerspectiveCheckpoints string
	Sequences              string
	ServiceInstances       string
	PartitionAssignments   string
}

// NewTables returns the table names for prefix. An empty prefix selects DefaultTablePrefix.
func NewTables(prefix string) Tables {
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	return Tables{
		Prefix:                 prefix,
		EventStore:             prefix + "event_store",
		Inbox:                  prefix + "inbox",
		Outbox:                 prefix + "outbox",
		PerspectiveCheckpoints: prefix + "perspective_checkpoints",
		Sequences:              prefix + "sequences",
		ServiceInstances:       prefix + "service_instances",
		PartitionAssignments:   prefix + "partition_assignments",
	}
}

// Expand replaces {{table}} style markers in query with the resolved names.
// Recognized markers: {{event_store}}, {{inbox}}, {{outbox}}, {{perspective_checkpoints}},
// {{sequences}}, {{service_instances}}, {{partition_assignments}}.
func (t Tables) Expand(query string) string {
	return strings.NewReplacer(
		"{{event_store}}", t.EventStore,
		"{{inbox}}", t.Inbox,
		"{{outbox}}", t.Outbox,
		"{{perspective_checkpoints}}", t.PerspectiveCheckpoints,
		"{{sequences}}", t.Sequences,
		"{{service_instances}}", t.ServiceInstances,
		"{{partition_assignments}}", t.PartitionAssignments,
	).Replace(query)
}

// PostgresPlaceholders returns "$start, $start+1, ..." for count parameters.
func PostgresPlaceholders(start, count int) string {
	parts := make([]string, count)
	for i := range count {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// MySQLPlaceholders returns "?, ?, ..." for count parameters.
func MySQLPlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

// PostgresTuplePlaceholders returns "($start, $start+1), ..." for rows tuples of width parameters.
func PostgresTuplePlaceholders(start, rows, width int) string {
	parts := make([]string, rows)
	for i := range rows {
		parts[i] = "(" + PostgresPlaceholders(start+i*width, width) + ")"
	}
	return strings.Join(parts, ", ")
}

// MySQLTuplePlaceholders returns "(?, ?), ..." for rows tuples of width parameters.
func MySQLTuplePlaceholders(rows, width int) string {
	if rows <= 0 {
		return ""
	}
	tuple := "(" + MySQLPlaceholders(width) + ")"
	return strings.TrimSuffix(strings.Repeat(tuple+", ", rows), ", ")
}
