package domain

// Event is a domain event emitted by a committed state transition.
type Event interface {
	EventName() string
}

// Event names as exposed to the host log.
const (
	EventKittyCreated     = "kitty_created"
	EventKittyBred        = "kitty_bred"
	EventKittyTransferred = "kitty_transferred"
)

// KittyCreated is emitted when a kitty is minted.
type KittyCreated struct {
	Owner AccountID `json:"owner"`
	ID    EntityID  `json:"id"`
	DNA   DNA       `json:"dna"`
}

// EventName implements Event.
func (KittyCreated) EventName() string { return EventKittyCreated }

// KittyBred is emitted when two kitties are combined into a child.
type KittyBred struct {
	Owner   AccountID `json:"owner"`
	ParentA EntityID  `json:"parent_a"`
	ParentB EntityID  `json:"parent_b"`
	ChildID EntityID  `json:"child_id"`
	DNA     DNA       `json:"dna"`
}

// EventName implements Event.
func (KittyBred) EventName() string { return EventKittyBred }

// KittyTransferred is emitted when ownership changes hands.
type KittyTransferred struct {
	From AccountID `json:"from"`
	To   AccountID `json:"to"`
	ID   EntityID  `json:"id"`
}

// EventName implements Event.
func (KittyTransferred) EventName() string { return EventKittyTransferred }
