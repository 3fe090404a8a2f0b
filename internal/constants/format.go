package constants

// Format is an output format for rendered graphs and reports.
type Format string

const (
	// FormatText is the human-readable summary.
	FormatText Format = "text"

	// FormatJSON is the snapshot as JSON.
	FormatJSON Format = "json"

	// FormatDOT is the Graphviz rendering.
	FormatDOT Format = "dot"
)

// Valid returns true if the format is a recognized value.
func (f Format) Valid() bool {
	switch f {
	case FormatText, FormatJSON, FormatDOT:
		return true
	}
	return false
}

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}
