package astivoice

// Event names
const (
	EventNameSessionUpdated = "session.updated"
)

// Event represents an event
type Event struct {
	Name  string
	State State
}
