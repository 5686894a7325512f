package mirage

import "regexp"

// --- Request context ---

// RequestContext is the immutable, serialisable view of one HTTP request.
// It is produced once per request by the HTTP layer and consumed by the
// planner (JSON form, raw body excluded) and the execution host.
type RequestContext struct {
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Segments  []string            `json:"segments"`
	Query     map[string][]string `json:"query"`
	Headers   map[string]string   `json:"headers"`
	BodyJSON  any                 `json:"body_json"`
	BodyRaw   []byte              `json:"-"`
	Client    ClientInfo          `json:"client"`
	Session   SessionInfo         `json:"session"`
	RequestID string              `json:"request_id"`
}

// ClientInfo identifies the calling peer.
type ClientInfo struct {
	IP string `json:"ip,omitempty"`
}

// SessionInfo carries the derived tenant identity.
type SessionInfo struct {
	ID    string `json:"id"`
	Token string `json:"token,omitempty"`
}

// --- Plan ---

// Action is the structured intent the planner extracts from a request.
type Action string

const (
	ActionCreate  Action = "create"
	ActionGet     Action = "get"
	ActionList    Action = "list"
	ActionReplace Action = "replace"
	ActionPatch   Action = "patch"
	ActionDelete  Action = "delete"
	ActionSearch  Action = "search"
)

// Plan is the planner's answer for one request: intent plus the program to
// execute. Immutable after creation; never persisted.
type Plan struct {
	Action     Action `json:"action"`
	Resource   string `json:"resource"`
	Identifier any    `json:"identifier,omitempty"`
	Code       string `json:"-"`
}

// resourceNamePattern constrains resource names (and therefore file names in
// the durable backend) to a safe subset.
var resourceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidResourceName reports whether name may be used as a resource name.
func ValidResourceName(name string) bool {
	return resourceNamePattern.MatchString(name)
}

// --- Records and schemas ---

// Record is one stored entity: field name → JSON-compatible value, with a
// required "id" field. Store methods always accept and return deep copies.
type Record = map[string]any

// SchemaSnapshot is the learned shape of a resource collection, rewritten on
// every successful insert/replace/update. It only biases the planner prompt
// toward consistent field names; nothing enforces it structurally.
type SchemaSnapshot struct {
	Fields    []string `json:"fields"`
	Example   Record   `json:"example"`
	UpdatedAt string   `json:"updated_at"`
}

// --- Replies ---

// Reply is the HTTP-shaped outcome of one request. The execution host
// produces it from the program's REPLY binding; the driver also builds one
// directly on error paths.
type Reply struct {
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	Body      any               `json:"body"`
	MediaType string            `json:"media_type,omitempty"`
	IsJSON    bool              `json:"is_json"`
}

// ErrorReply builds the standard JSON error reply for status.
func ErrorReply(status int, message string) Reply {
	return Reply{
		Status:  status,
		Headers: map[string]string{},
		Body:    map[string]any{"error": message},
		IsJSON:  true,
	}
}
