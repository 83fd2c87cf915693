package domain

import "time"

// HistoryItemType classifies what a history entry holds.
type HistoryItemType string

const (
	HistoryImage HistoryItemType = "image"
	HistoryVideo HistoryItemType = "video"
	HistoryText  HistoryItemType = "text"
)

// Valid reports whether t is a known item type.
func (t HistoryItemType) Valid() bool {
	switch t {
	case HistoryImage, HistoryVideo, HistoryText:
		return true
	}
	return false
}

// HistoryItem is one persisted generation result. Data is a URL for media
// items and the raw text for text items.
type HistoryItem struct {
	ID        string          `json:"id"`
	Type      HistoryItemType `json:"type"`
	Data      string          `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Mode      string          `json:"mode"`
	Prompt    string          `json:"prompt,omitempty"`
}
