package attendance

// State is where a Session sits in its edit lifecycle.
type State int

const (
	Viewing State = iota
	Editing
	Saving
)

func (s State) String() string {
	switch s {
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type operation int

const (
	opSelectDate operation = iota
	opEnterEdit
	opExitEdit
	opStage
	opCommit
	opCommitOne
	opRetryFetch
)

// permitted lists, per state, the operations a Session accepts.
var permitted = map[State]map[operation]bool{
	Viewing: {
		opSelectDate: true,
		opEnterEdit:  true,
		opExitEdit:   true,
		opCommitOne:  true,
		opRetryFetch: true,
	},
	Editing: {
		opSelectDate: true,
		opEnterEdit:  true,
		opExitEdit:   true,
		opStage:      true,
		opCommit:     true,
		opCommitOne:  true,
		opRetryFetch: true,
	},
	Saving: {
		opRetryFetch: true,
	},
}

func permit(s State, op operation) error {
	if permitted[s][op] {
		return nil
	}
	if s == Saving {
		return ErrCommitInProgress
	}
	return ErrNotEditable
}
