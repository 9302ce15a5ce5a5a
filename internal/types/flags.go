package types

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds the persistent flags shared by every command
type GlobalFlags struct {
	Profile      string
	Backend      string
	DriveID      string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	CacheTTL     int
	LogFile      string
	ConfigPath   string
}
