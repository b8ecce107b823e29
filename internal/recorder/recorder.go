package recorder

import "time"

// ActionEvent is one line of the ledger's action history.
type ActionEvent struct {
	RunID   string
	Account string
	Action  string // "insert", "withdraw", "renewal", "check_sus_limit", ...
	Note    string
	At      time.Time
}

// Recorder persists the history of ledger actions for auditing.
type Recorder interface {
	RecordAction(evt *ActionEvent) error
	Close() error
}
