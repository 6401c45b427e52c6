package storage

import (
	"time"

	"github.com/twinj/uuid"
)

// Action is the kind of change recorded in the changelog.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ChangeMessage records one mutation of a project.
type ChangeMessage struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Element     string    `json:"element"`
	User        string    `json:"user,omitempty"`
	Action      Action    `json:"action"`
	Description string    `json:"description"`
}

// NewChangeMessage returns a message stamped with a new ID and the current time.
func NewChangeMessage(element, user string, action Action, description string) ChangeMessage {
	return ChangeMessage{
		ID:          uuid.NewV4().String(),
		Time:        time.Now().UTC(),
		Element:     element,
		User:        user,
		Action:      action,
		Description: description,
	}
}

// ProjectMetadata is persisted once per store.
type ProjectMetadata struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Changelog   []ChangeMessage `json:"changelog"`
}

// History returns the changelog entries for one element in order.
func (md *ProjectMetadata) History(element string) []ChangeMessage {
	var out []ChangeMessage
	for _, msg := range md.Changelog {
		if msg.Element == element {
			out = append(out, msg)
		}
	}
	return out
}
