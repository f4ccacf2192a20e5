package llmcache

// Kind identifies which request shape a Request carries. It doubles as the
// fingerprint namespace.
type Kind string

const (
	KindChat       Kind = "chat"
	KindCompletion Kind = "completion"
	KindVision     Kind = "vision"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSystem, RoleUser, RoleAssistant:
		return Role(s), true
	default:
		return "", false
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a validated logical LLM request carrying exactly one payload; use
// the constructors to build one.
type Request struct {
	kind       Kind
	chat       *ChatRequest
	completion *CompletionRequest
	vision     *VisionRequest
}

type ChatRequest struct {
	Model    string
	Messages []Message
}

// CompletionRequest is a bare prompt. Model is the model that will answer it,
// already defaulted, and Metadata excludes whatever selected that model.
type CompletionRequest struct {
	Prompt   string
	Context  map[string]any
	Metadata map[string]any
	Model    string
}

type VisionRequest struct {
	Prompt    string
	ImageURLs []string
	Model     string
}

func NewChat(r ChatRequest) Request {
	return Request{kind: KindChat, chat: &r}
}

func NewCompletion(r CompletionRequest) Request {
	return Request{kind: KindCompletion, completion: &r}
}

func NewVision(r VisionRequest) Request {
	return Request{kind: KindVision, vision: &r}
}

func (r Request) Kind() Kind { return r.kind }
