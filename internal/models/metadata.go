package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Metadata is the channel-specific payload of a post. The concrete type is
// selected by the post's channel.
type Metadata interface {
	Channel() Channel
}

type EmailMetadata struct {
	FromName string `json:"from_name,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
	HTML     string `json:"html,omitempty"`
}

type SMSMetadata struct {
	SenderID string `json:"sender_id,omitempty"`
}

type WhatsAppMetadata struct {
	ContentSID string `json:"content_sid,omitempty"`
}

type FacebookMetadata struct {
	PageID string `json:"page_id,omitempty"`
}

type InstagramMetadata struct {
	AccountID string `json:"account_id,omitempty"`
	MediaType string `json:"media_type,omitempty"` // IMAGE / REELS
}

type LinkedInMetadata struct {
	AuthorURN  string `json:"author_urn,omitempty"`
	Visibility string `json:"visibility,omitempty"` // PUBLIC / CONNECTIONS
}

type YouTubeMetadata struct {
	Title      string   `json:"title,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Privacy    string   `json:"privacy,omitempty"` // public / unlisted / private
	CategoryID string   `json:"category_id,omitempty"`
}

type PinterestMetadata struct {
	BoardID string `json:"board_id,omitempty"`
	Link    string `json:"link,omitempty"`
	AltText string `json:"alt_text,omitempty"`
}

func (EmailMetadata) Channel() Channel     { return ChannelEmail }
func (SMSMetadata) Channel() Channel       { return ChannelSMS }
func (WhatsAppMetadata) Channel() Channel  { return ChannelWhatsApp }
func (FacebookMetadata) Channel() Channel  { return ChannelFacebook }
func (InstagramMetadata) Channel() Channel { return ChannelInstagram }
func (LinkedInMetadata) Channel() Channel  { return ChannelLinkedIn }
func (YouTubeMetadata) Channel() Channel   { return ChannelYouTube }
func (PinterestMetadata) Channel() Channel { return ChannelPinterest }

var metadataSchemas = map[Channel]string{
	ChannelEmail: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"from_name": {"type": "string", "maxLength": 128},
			"reply_to": {"type": "string", "format": "email"},
			"html": {"type": "string"}
		}
	}`,
	ChannelSMS: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"sender_id": {"type": "string", "maxLength": 11}
		}
	}`,
	ChannelWhatsApp: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"content_sid": {"type": "string", "pattern": "^HX[0-9a-fA-F]{32}$"}
		}
	}`,
	ChannelFacebook: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"page_id": {"type": "string", "minLength": 1}
		}
	}`,
	ChannelInstagram: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"account_id": {"type": "string", "minLength": 1},
			"media_type": {"enum": ["IMAGE", "REELS"]}
		}
	}`,
	ChannelLinkedIn: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"author_urn": {"type": "string", "pattern": "^urn:li:(person|organization):.+"},
			"visibility": {"enum": ["PUBLIC", "CONNECTIONS"]}
		}
	}`,
	ChannelYouTube: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"title": {"type": "string", "maxLength": 100},
			"tags": {"type": "array", "items": {"type": "string"}},
			"privacy": {"enum": ["public", "unlisted", "private"]},
			"category_id": {"type": "string"}
		}
	}`,
	ChannelPinterest: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"board_id": {"type": "string", "minLength": 1},
			"link": {"type": "string", "format": "uri"},
			"alt_text": {"type": "string", "maxLength": 500}
		}
	}`,
}

var (
	schemaOnce     sync.Once
	compiledSchema map[Channel]*gojsonschema.Schema
	schemaErr      error
)

func loadSchemas() (map[Channel]*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema = make(map[Channel]*gojsonschema.Schema, len(metadataSchemas))
		for ch, src := range metadataSchemas {
			s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				schemaErr = fmt.Errorf("compile %s metadata schema: %w", ch, err)
				return
			}
			compiledSchema[ch] = s
		}
	})
	return compiledSchema, schemaErr
}

// MetadataError lists the schema violations of a metadata payload.
type MetadataError struct {
	Channel Channel
	Issues  []string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("invalid %s metadata: %s", e.Channel, strings.Join(e.Issues, "; "))
}

// DecodeMetadata validates raw against the channel schema and decodes it into
// the channel's variant. Empty or null payloads decode to the zero variant.
func DecodeMetadata(ch Channel, raw json.RawMessage) (Metadata, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	schema, ok := schemas[ch]
	if !ok {
		return nil, fmt.Errorf("unsupported channel %q", ch)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &MetadataError{Channel: ch, Issues: []string{err.Error()}}
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return nil, &MetadataError{Channel: ch, Issues: issues}
	}

	var m Metadata
	switch ch {
	case ChannelEmail:
		m, err = decodeVariant[EmailMetadata](raw)
	case ChannelSMS:
		m, err = decodeVariant[SMSMetadata](raw)
	case ChannelWhatsApp:
		m, err = decodeVariant[WhatsAppMetadata](raw)
	case ChannelFacebook:
		m, err = decodeVariant[FacebookMetadata](raw)
	case ChannelInstagram:
		m, err = decodeVariant[InstagramMetadata](raw)
	case ChannelLinkedIn:
		m, err = decodeVariant[LinkedInMetadata](raw)
	case ChannelYouTube:
		m, err = decodeVariant[YouTubeMetadata](raw)
	case ChannelPinterest:
		m, err = decodeVariant[PinterestMetadata](raw)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodeVariant[T Metadata](raw []byte) (Metadata, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
