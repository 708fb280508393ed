package domain

// ChannelType identifies an escalation delivery channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeLog        ChannelType = "log"
	ChannelTypeEmail      ChannelType = "email"
	ChannelTypeMattermost ChannelType = "mattermost"
	ChannelTypeSlack      ChannelType = "slack"
	ChannelTypeTelegram   ChannelType = "telegram"
)
