package bus

// InboundMessage is one user turn delivered by a transport. Attachments
// holds transport references to files sent with the turn.
type InboundMessage struct {
	Channel     string            `json:"channel"`
	UserID      string            `json:"user_id"`
	ChatID      string            `json:"chat_id"`
	MessageID   string            `json:"message_id,omitempty"`
	Content     string            `json:"content"`
	Attachments []string          `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HasAttachments reports whether the turn carried any files.
func (m InboundMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// Menu is a button keyboard: rows of button labels. A pressed button comes
// back as an inbound message whose content is the label.
type Menu [][]string

// Labels flattens the menu in display order.
func (m Menu) Labels() []string {
	var out []string
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}

// OutboundMessage is one reply to a user, optionally with a menu.
type OutboundMessage struct {
	Channel string `json:"channel,omitempty"`
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id,omitempty"`
	Content string `json:"content"`
	Menu    Menu   `json:"menu,omitempty"`
}
