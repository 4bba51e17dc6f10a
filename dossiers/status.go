package dossiers

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a dossier.
// Model names differ from the upstream API names, both are accepted.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusInitiated           Status = "initiated"            // en_construction
	StatusReceived            Status = "received"             // en_instruction
	StatusClosed              Status = "closed"               // accepte
	StatusRefused             Status = "refused"              // refuse
	StatusWithoutContinuation Status = "without_continuation" // sans_suite
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusDraft,
	StatusInitiated,
	StatusReceived,
	StatusClosed,
	StatusRefused,
	StatusWithoutContinuation,
}

// TerminalStatuses are never fetched again once stored.
var TerminalStatuses = []Status{StatusClosed, StatusRefused, StatusWithoutContinuation}

var statusLabels = map[Status]string{
	StatusDraft:               "Brouillon",
	StatusInitiated:           "En construction",
	StatusReceived:            "En instruction",
	StatusClosed:              "Accepté",
	StatusRefused:             "Refusé",
	StatusWithoutContinuation: "Sans suite",
}

// ParseStatus maps an upstream `state` value to a Status:
// - draft/brouillon -> draft
// - initiated/en_construction -> initiated
// - received/en_instruction -> received
// - closed/accepte -> closed
// - refused/refuse -> refused
// - without_continuation/sans_suite -> without_continuation
func ParseStatus(v string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "draft", "brouillon":
		return StatusDraft, nil
	case "initiated", "en_construction":
		return StatusInitiated, nil
	case "received", "en_instruction":
		return StatusReceived, nil
	case "closed", "accepte":
		return StatusClosed, nil
	case "refused", "refuse":
		return StatusRefused, nil
	case "without_continuation", "sans_suite":
		return StatusWithoutContinuation, nil
	default:
		return "", fmt.Errorf("unknown state %q", v)
	}
}

func (s Status) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// Label is the French display name used in exports and the watch list.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}
