package content

// Table is the table tool payload: an append-only change log, each entry
// a serialized table change. The replay engine in pkg/table interprets
// the entries; this type only guarantees the log is complete and ordered.
type Table struct {
	Type       string   `json:"type"`
	IsImported bool     `json:"isImported,omitempty"`
	Changes    []string `json:"changes"`
}

// NewTable returns an empty table payload.
func NewTable() *Table {
	return &Table{Type: TypeTable}
}

// ContentType implements Content.
func (t *Table) ContentType() string { return TypeTable }

// Append adds a serialized change entry to the log.
func (t *Table) Append(change string) {
	t.Changes = append(t.Changes, change)
}

// Len returns the number of logged changes.
func (t *Table) Len() int { return len(t.Changes) }
