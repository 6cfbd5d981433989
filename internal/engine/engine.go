package engine

import (
	"errors"

	"github.com/tileduel/tileduel-backend/internal/board"
)

var ErrNotActive = errors.New("round is not active")
var ErrRoundComplete = errors.New("round already complete")
var ErrCellMatched = errors.New("cell already matched")
var ErrCellSelected = errors.New("cell already selected")
var ErrSelectionPending = errors.New("selection pair pending resolution")
var ErrUnknownCell = errors.New("unknown cell")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseComplete  Phase = "complete"
)

// Rules are the scoring and timing parameters of a round. Both
// participants of a session run identical rules, so scores computed on
// either side are comparable.
type Rules struct {
	CountdownTicks  int
	RoundSeconds    int
	MatchBase       int
	TimeBonusCap    int
	MismatchPenalty int // points removed on a failed pair, 0 disables
}

func DefaultRules() Rules {
	return Rules{
		CountdownTicks: 3,
		RoundSeconds:   60,
		MatchBase:      100,
		TimeBonusCap:   50,
	}
}

// State is one participant's view of a round. It is never shared with
// the other participant and never persisted.
type State struct {
	Phase     Phase
	Countdown int
	Remaining int
	Board     board.Board
	Selected  []int // at most two pending selections
	Matched   map[int]bool
	Score     int
	Resolving bool // a mismatched pair is face-up awaiting flip-back
	EndReason EndReason
	Rules     Rules
}

type EndReason string

const (
	EndAllMatched  EndReason = "all_matched"
	EndTimeExpired EndReason = "time_expired"
)

func NewState(b board.Board, rules Rules) State {
	return State{
		Phase:     PhaseCountdown,
		Countdown: rules.CountdownTicks,
		Remaining: rules.RoundSeconds,
		Board:     b,
		Matched:   map[int]bool{},
		Rules:     rules,
	}
}

func (s State) MatchedPairs() int { return len(s.Matched) / 2 }

func (s State) allMatched() bool { return len(s.Matched) == len(s.Board.Cells) }

type CommandType string

const (
	CmdSelectCell    CommandType = "SelectCell"
	CmdResolvePair   CommandType = "ResolvePair"
	CmdCountdownTick CommandType = "CountdownTick"
	CmdClockTick     CommandType = "ClockTick"
)

type Command struct {
	Type   CommandType
	CellID int
}

type EventType string

const (
	EvtCountdownTicked EventType = "CountdownTicked"
	EvtRoundStarted    EventType = "RoundStarted"
	EvtCellRevealed    EventType = "CellRevealed"
	EvtPairMatched     EventType = "PairMatched"
	EvtPairMissed      EventType = "PairMissed"
	EvtRoundEnded      EventType = "RoundEnded"
)

type Event struct {
	Type   EventType
	CellID int
	Points int
	Reason EndReason
}

// Apply advances the round state by one command. It is pure: the input
// state is not mutated, and no wall-clock time is read — progress comes
// only from tick commands delivered by the runner.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseComplete {
		return nil, s, ErrRoundComplete
	}

	switch cmd.Type {
	case CmdCountdownTick:
		if s.Phase != PhaseCountdown {
			return nil, s, ErrNotActive
		}
		next := s
		next.Countdown--
		if next.Countdown > 0 {
			return []Event{{Type: EvtCountdownTicked}}, next, nil
		}
		next.Countdown = 0
		next.Phase = PhaseActive
		next.Remaining = s.Rules.RoundSeconds
		return []Event{{Type: EvtRoundStarted}}, next, nil

	case CmdClockTick:
		if s.Phase != PhaseActive {
			return nil, s, ErrNotActive
		}
		next := s
		next.Remaining--
		if next.Remaining > 0 {
			return nil, next, nil
		}
		next.Remaining = 0
		next.Phase = PhaseComplete
		next.EndReason = EndTimeExpired
		return []Event{{Type: EvtRoundEnded, Reason: EndTimeExpired}}, next, nil

	case CmdSelectCell:
		if s.Phase != PhaseActive {
			return nil, s, ErrNotActive
		}
		if s.Resolving || len(s.Selected) >= 2 {
			return nil, s, ErrSelectionPending
		}
		if _, ok := s.Board.PairOf[cmd.CellID]; !ok {
			return nil, s, ErrUnknownCell
		}
		if s.Matched[cmd.CellID] {
			return nil, s, ErrCellMatched
		}
		if len(s.Selected) == 1 && s.Selected[0] == cmd.CellID {
			return nil, s, ErrCellSelected
		}

		next := s
		next.Selected = append(append([]int{}, s.Selected...), cmd.CellID)
		events := []Event{{Type: EvtCellRevealed, CellID: cmd.CellID}}

		if len(next.Selected) < 2 {
			return events, next, nil
		}

		a, b := next.Selected[0], next.Selected[1]
		if next.Board.IsPair(a, b) {
			points := next.Rules.MatchBase + min(next.Remaining, next.Rules.TimeBonusCap)
			next.Matched = cloneMatched(next.Matched)
			next.Matched[a] = true
			next.Matched[b] = true
			next.Score += points
			next.Selected = nil
			events = append(events, Event{Type: EvtPairMatched, CellID: b, Points: points})

			if next.allMatched() {
				next.Phase = PhaseComplete
				next.EndReason = EndAllMatched
				events = append(events, Event{Type: EvtRoundEnded, Reason: EndAllMatched})
			}
			return events, next, nil
		}

		// Mismatch: leave both face-up until the runner delivers
		// ResolvePair after the reveal delay.
		next.Resolving = true
		events = append(events, Event{Type: EvtPairMissed, CellID: b})
		return events, next, nil

	case CmdResolvePair:
		if s.Phase != PhaseActive {
			return nil, s, ErrNotActive
		}
		if !s.Resolving {
			return nil, s, nil
		}
		next := s
		next.Selected = nil
		next.Resolving = false
		next.Score = max(0, next.Score-next.Rules.MismatchPenalty)
		return nil, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func cloneMatched(m map[int]bool) map[int]bool {
	out := make(map[int]bool, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
