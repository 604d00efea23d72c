package message

// Role tells whether an Identifier was taken from a request or a response.
type Role uint8

const (
	RoleRequest Role = iota
	RoleResponse
)

// Identifier correlates responses with outstanding requests.
type Identifier struct {
	MessageID uint16
	Token     Token
	// Endpoint is the remote address, empty when unknown.
	Endpoint string
	Role     Role
	Type     Type
}

func NewIdentifier(m *Message, endpoint string, role Role) Identifier {
	token := m.Token
	if token == nil {
		token = Token{}
	}
	return Identifier{
		MessageID: m.MessageID,
		Token:     token,
		Endpoint:  endpoint,
		Role:      role,
		Type:      m.Type,
	}
}

// Matches reports whether i and o belong to the same exchange.
//
// A request matches an Acknowledgement by message ID and token (piggybacked
// response) and any other response by token alone (separate response).
func (i Identifier) Matches(o Identifier) bool {
	if !i.Token.Equal(o.Token) {
		return false
	}
	if i.Endpoint != "" && o.Endpoint != "" && i.Endpoint != o.Endpoint {
		return false
	}
	switch {
	case i.Role == RoleRequest && o.Role != RoleRequest:
		return o.Type != Acknowledgement || i.MessageID == o.MessageID
	case o.Role == RoleRequest && i.Role != RoleRequest:
		return i.Type != Acknowledgement || i.MessageID == o.MessageID
	}
	return i.MessageID == o.MessageID
}
