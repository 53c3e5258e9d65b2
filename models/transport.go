package models

// TransportState is what the media transport reports to the call layer.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnected
	TransportDisconnected
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
