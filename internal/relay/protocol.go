package relay

// Actions understood by the page side.
const (
	ActionGet          = "getLocalStorage"
	ActionSet          = "setLocalStorage"
	ActionRemove       = "removeLocalStorage"
	ActionGetAll       = "getAllLocalStorage"
	ActionFindUsers    = "findAllUserEmails"
	ActionCriticalSync = "triggerCriticalSync"
)

// Path is where Hub is mounted.
const Path = "/relay"

// readLimit bounds one frame; getAllLocalStorage replies carry whole stores.
const readLimit = 8 << 20

type request struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

type response struct {
	ID             string            `json:"id"`
	Success        bool              `json:"success"`
	Value          string            `json:"value,omitempty"`
	ValueExists    bool              `json:"valueExists,omitempty"`
	Storage        map[string]string `json:"storage,omitempty"`
	Users          []string          `json:"users,omitempty"`
	SanitizedUsers []string          `json:"sanitizedUsers,omitempty"`
	Error          string            `json:"error,omitempty"`
}
