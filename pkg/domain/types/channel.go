package types

// ChannelID identifies a conversation channel on the chat platform
type ChannelID string

// String returns the string representation of ChannelID
func (c ChannelID) String() string {
	return string(c)
}

// Category returns the memory category used for durable records of this
// channel's conversation.
func (c ChannelID) Category() Category {
	return Category(c)
}
