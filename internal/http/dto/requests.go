package dto

// SendPostRequest triggers an immediate dispatch of one post. RecipientIDs
// narrows a per-recipient post to a subset of the campaign's contacts.
type SendPostRequest struct {
	RecipientIDs []string `json:"recipient_ids,omitempty"`
}
