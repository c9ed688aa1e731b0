package protocol

// Directory and file name constants used throughout msgbridge.
const (
	// HomeDir is the user-level state directory (e.g., ~/.msgbridge).
	HomeDir = ".msgbridge"

	// ScriptsDir is the script repository directory under the install root.
	ScriptsDir = "scripts"

	// ScratchPrefix prefixes the per-process scratch directory name.
	ScratchPrefix = "msgbridge"

	// SetupScriptPrefix is the file name prefix of the readiness probe script.
	SetupScriptPrefix = "Setup"

	// ResultSeparator separates result codes on the last stdout line of a script.
	ResultSeparator = ", "
)
