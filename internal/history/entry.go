package history

// Outcome values recorded for a run.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// SourceCount is the per-source tally of one run.
type SourceCount struct {
	Origin   string `json:"origin"`
	Raw      int    `json:"raw"`
	Accepted int    `json:"accepted"`
}

// RunEntry is one line in the hash-chained JSONL run history.
// All fields are structs or scalars so json.Marshal field order is stable
// and the line hash is reproducible.
type RunEntry struct {
	Timestamp   string        `json:"ts"`
	Outcome     string        `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	Sources     []SourceCount `json:"sources"`
	Accepted    int           `json:"accepted"`
	Rejected    int           `json:"rejected"`
	Duplicates  int           `json:"duplicates"`
	Total       int           `json:"total"`
	Set         string        `json:"set,omitempty"`
	SetCreated  bool          `json:"set_created,omitempty"`
	RuleAdded   bool          `json:"rule_added,omitempty"`
	Unbanned    int           `json:"unbanned"`
	UnbanFailed int           `json:"unban_failed"`
	PrevHash    string        `json:"prev_hash"`
}
