package casregistry

// Usage restricts which programs accept a backend.
type Usage uint8

const (
	// UsageCLI: available to the mediacid command and library callers.
	UsageCLI Usage = 1 << iota
	// UsageDaemon: available to mediacid-casd.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
