package types

// TableRenderer is what the table output format prints. Rows line up with
// Headers; EmptyMessage replaces the table when there are no rows.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}

// TableRenderable results pick their own table layout
type TableRenderable interface {
	AsTableRenderer() TableRenderer
}
