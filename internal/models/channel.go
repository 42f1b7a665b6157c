package models

import "strings"

type Channel string

const (
	ChannelEmail     Channel = "EMAIL"
	ChannelSMS       Channel = "SMS"
	ChannelWhatsApp  Channel = "WHATSAPP"
	ChannelFacebook  Channel = "FACEBOOK"
	ChannelInstagram Channel = "INSTAGRAM"
	ChannelLinkedIn  Channel = "LINKEDIN"
	ChannelYouTube   Channel = "YOUTUBE"
	ChannelPinterest Channel = "PINTEREST"
)

var AllChannels = []Channel{
	ChannelEmail, ChannelSMS, ChannelWhatsApp,
	ChannelFacebook, ChannelInstagram, ChannelLinkedIn, ChannelYouTube, ChannelPinterest,
}

// MeteredChannels are billed per confirmed delivery against the plan caps.
var MeteredChannels = []Channel{ChannelSMS, ChannelWhatsApp}

func ParseChannel(s string) (Channel, bool) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range AllChannels {
		if c == ch {
			return c, true
		}
	}
	return "", false
}

// IsBroadcast reports whether one send reaches an audience through a page or account.
func (c Channel) IsBroadcast() bool {
	switch c {
	case ChannelFacebook, ChannelInstagram, ChannelLinkedIn, ChannelYouTube, ChannelPinterest:
		return true
	}
	return false
}

func (c Channel) IsPerRecipient() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

func (c Channel) IsMetered() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

func (c Channel) String() string { return string(c) }
