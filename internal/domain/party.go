package domain

// PartyKind distinguishes the two participant roles in the marketplace.
// Every conversation is between a user and a freelancer.
type PartyKind string

const (
	PartyKindUser       PartyKind = "user"
	PartyKindFreelancer PartyKind = "freelancer"
)

func (k PartyKind) Valid() bool {
	return k == PartyKindUser || k == PartyKindFreelancer
}

// Other returns the opposite kind.
func (k PartyKind) Other() PartyKind {
	if k == PartyKindUser {
		return PartyKindFreelancer
	}
	return PartyKindUser
}

// Party is one conversation participant.
type Party struct {
	ID   string    `json:"id"`
	Kind PartyKind `json:"kind"`
}

// Credential is the signed-in party's identity as supplied by the auth
// collaborator. The token is opaque to the chat subsystem; it is handed to
// the realtime transport at connect time and never inspected client-side.
type Credential struct {
	ID    string    `json:"id"`
	Token string    `json:"token"`
	Kind  PartyKind `json:"type"`
}

func (c Credential) Party() Party {
	return Party{ID: c.ID, Kind: c.Kind}
}
