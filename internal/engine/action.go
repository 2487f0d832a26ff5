package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// Action is a parsed, not-yet-validated action string (spec §6 grammar).
type Action struct {
	Intent  Intent
	Params  ActionParams
	Raw     string // the original action string, stored verbatim on the journal row
}

// ActionParams holds the union of fields any intent might carry. Only the
// fields relevant to Intent are meaningful.
type ActionParams struct {
	Direction Facing
	Color     string
	HasTarget bool
	TargetX   int
	TargetY   int
	Message   string
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ParseAction parses an action string per the grammar in spec §6:
//
//	action := "MOVE " dir | "PAINT " color [" " int " " int] | "SPEAK " text | "WAIT" | "SKIP"
//	dir     := "N" | "S" | "E" | "W"
//	color   := "#" HEX{6}
//
// It returns a *Error with CodeMalformedAction on any grammar violation;
// intent-specific semantic validation (bounds) happens later in the intake
// validator, and destination-occupancy conflicts later still at merge
// time — both need state this parser doesn't have access to.
func ParseAction(raw string) (Action, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Action{}, newErr(CodeMalformedAction, "empty action")
	}

	fields := strings.Fields(trimmed)
	intent := Intent(strings.ToUpper(fields[0]))
	rest := strings.TrimSpace(trimmed[len(fields[0]):])

	switch intent {
	case IntentMove:
		dir := strings.ToUpper(rest)
		if dir != "N" && dir != "S" && dir != "E" && dir != "W" {
			return Action{}, newErr(CodeMalformedAction, "MOVE requires a direction in {N,S,E,W}, got %q", rest)
		}
		return Action{Intent: IntentMove, Raw: raw, Params: ActionParams{Direction: Facing(dir)}}, nil

	case IntentPaint:
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			return Action{}, newErr(CodeMalformedAction, "PAINT requires a color, got %q", rest)
		}
		color := parts[0]
		if !colorPattern.MatchString(color) {
			return Action{}, newErr(CodeMalformedAction, "PAINT color %q is not #RRGGBB", color)
		}
		params := ActionParams{Color: color}
		switch len(parts) {
		case 1:
			// target defaults to the actor's own cell (resolved by the validator)
		case 3:
			x, errX := strconv.Atoi(parts[1])
			y, errY := strconv.Atoi(parts[2])
			if errX != nil || errY != nil {
				return Action{}, newErr(CodeMalformedAction, "PAINT target must be two integers, got %q %q", parts[1], parts[2])
			}
			params.HasTarget = true
			params.TargetX, params.TargetY = x, y
		default:
			return Action{}, newErr(CodeMalformedAction, "PAINT takes a color and an optional \"x y\" target, got %q", rest)
		}
		return Action{Intent: IntentPaint, Raw: raw, Params: params}, nil

	case IntentSpeak:
		if rest == "" {
			return Action{}, newErr(CodeMalformedAction, "SPEAK requires a non-empty message")
		}
		if len(rest) > maxChatMessageLen {
			return Action{}, newErr(CodeMalformedAction, "SPEAK message exceeds %d characters", maxChatMessageLen)
		}
		return Action{Intent: IntentSpeak, Raw: raw, Params: ActionParams{Message: rest}}, nil

	case IntentWait:
		if rest != "" {
			return Action{}, newErr(CodeMalformedAction, "WAIT takes no parameters, got %q", rest)
		}
		return Action{Intent: IntentWait, Raw: raw}, nil

	case IntentSkip:
		if rest != "" {
			return Action{}, newErr(CodeMalformedAction, "SKIP takes no parameters, got %q", rest)
		}
		return Action{Intent: IntentSkip, Raw: raw}, nil

	default:
		return Action{}, newErr(CodeMalformedAction, "unknown intent %q; must be one of MOVE, PAINT, SPEAK, WAIT, SKIP", fields[0])
	}
}

// maxChatMessageLen bounds SPEAK messages (spec §4.5: "message (bounded
// length)").
const maxChatMessageLen = 2000
