package types

// AgentRole identifies one of the fixed producer identities searching
// content for a point. The set of roles is configured once at startup;
// the core never assumes a specific count.
type AgentRole string

// Roles used by the reference deployment. Deployments may register
// any fixed set of roles.
const (
	RoleVideo AgentRole = "video"
	RoleMusic AgentRole = "music"
	RoleText  AgentRole = "text"
)

// ContentCandidate is one piece of content proposed by an agent for a
// point. The orchestrator treats it as an opaque payload; only the
// Judge inspects its fields.
type ContentCandidate struct {
	Role     AgentRole         `json:"role"`
	Title    string            `json:"title"`
	URI      string            `json:"uri,omitempty"`
	Source   string            `json:"source,omitempty"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AgentOutcome is the single report an agent runner delivers for a
// point: a candidate on success or a reason on failure, attributed to
// one role. Immutable once created.
type AgentOutcome struct {
	Role      AgentRole         `json:"role"`
	Candidate *ContentCandidate `json:"candidate,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// Succeeded reports whether the outcome carries a candidate.
func (o AgentOutcome) Succeeded() bool {
	return o.Candidate != nil
}

// SuccessOutcome builds a success report for a role.
func SuccessOutcome(role AgentRole, c *ContentCandidate) AgentOutcome {
	return AgentOutcome{Role: role, Candidate: c}
}

// FailureOutcome builds a failure report for a role.
func FailureOutcome(role AgentRole, reason string) AgentOutcome {
	return AgentOutcome{Role: role, Reason: reason}
}
