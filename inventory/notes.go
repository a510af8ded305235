package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"volunteerops/models"
)

var ErrInvalidTransition = errors.New("invalid note transition")

var noteTransitions = map[string][]string{
	models.NotePending:      {models.NoteAcknowledged, models.NoteInProgress, models.NoteResolved},
	models.NoteAcknowledged: {models.NoteInProgress, models.NoteResolved},
	models.NoteInProgress:   {models.NoteResolved},
	models.NoteResolved:     {models.NoteArchived, models.NoteInProgress},
}

func CanTransition(from, to string) bool {
	for _, s := range noteTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStates lists the buttons shown for a note in the given state.
func NextStates(from string) []string { return noteTransitions[from] }

type HistoryEntry struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	By      string    `json:"by"`
	At      time.Time `json:"at"`
	Comment string    `json:"comment,omitempty"`
}

// AppendHistory appends e to the JSON array stored in history.
// An empty or blank column counts as an empty history.
func AppendHistory(history string, e HistoryEntry) (string, error) {
	entries, err := ParseHistory(history)
	if err != nil {
		return "", err
	}
	entries = append(entries, e)
	out, err := sonic.MarshalString(entries)
	if err != nil {
		return "", fmt.Errorf("encode note history: %w", err)
	}
	return out, nil
}

func ParseHistory(history string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if history == "" || history == "null" {
		return entries, nil
	}
	if err := sonic.UnmarshalString(history, &entries); err != nil {
		return nil, fmt.Errorf("decode note history: %w", err)
	}
	return entries, nil
}

var validPriorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}
var validNoteTypes = map[string]bool{"general": true, "issue": true, "maintenance": true, "damage": true}

func ValidPriority(p string) bool { return validPriorities[p] }
func ValidNoteType(t string) bool { return validNoteTypes[t] }

var validItemStatuses = map[string]bool{
	models.ItemAvailable: true, models.ItemBooked: true, models.ItemMaintenance: true, models.ItemDamaged: true,
}

func ValidItemStatus(s string) bool { return validItemStatuses[s] }
