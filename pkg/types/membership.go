package types

import "time"

// Membership links a story to a sprint with an ordering priority. Within a
// sprint the priorities of all memberships form the dense run 1..N.
type Membership struct {
	MembershipID string    `json:"membership_id"`
	SprintID     string    `json:"sprint_id"`
	StoryID      string    `json:"story_id"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsDense reports whether the priorities of ms are exactly 1..len(ms) with no
// gaps or duplicates.
func IsDense(ms []Membership) bool {
	seen := make([]bool, len(ms)+1)
	for _, m := range ms {
		if m.Priority < 1 || m.Priority > len(ms) || seen[m.Priority] {
			return false
		}
		seen[m.Priority] = true
	}
	return true
}
