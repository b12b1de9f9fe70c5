package resource

// TicketResource is a support ticket collected from JIRA or Redmine.
type TicketResource struct {
	TicketID   string
	Body       string
	SourceType string // "jira" or "redmine"
	CreatedAt  string // RFC3339, empty if unknown
	Extra      map[string]interface{}
}

var _ Resource = (*TicketResource)(nil)

// Hash returns "{source_type}_{normalised_ticket_id}".
func (r *TicketResource) Hash() string {
	return r.SourceType + "_" + NormalizeIdentifier(r.TicketID)
}

// Filename returns "{hash}.txt".
func (r *TicketResource) Filename() string {
	return r.Hash() + ".txt"
}

// Content returns the ticket body as UTF-8 text.
func (r *TicketResource) Content() ([]byte, error) {
	return []byte(r.Body), nil
}

// Metadata builds display metadata, preferring an explicit display_name or
// url from Extra and falling back to "{source_type}:{ticket_id}".
func (r *TicketResource) Metadata() *Metadata {
	displayName, _ := r.Extra["display_name"].(string)
	if displayName == "" {
		displayName, _ = r.Extra["url"].(string)
	}
	if displayName == "" {
		displayName = r.SourceType + ":" + r.TicketID
	}

	extra := make(map[string]interface{}, len(r.Extra)+3)
	for k, v := range r.Extra {
		if k == "display_name" {
			continue
		}
		extra[k] = v
	}
	if _, ok := extra["ticket_id"]; !ok {
		extra["ticket_id"] = r.TicketID
	}
	if _, ok := extra["source_type"]; !ok {
		extra["source_type"] = r.SourceType
	}
	if r.CreatedAt != "" {
		if _, ok := extra["created_at"]; !ok {
			extra["created_at"] = r.CreatedAt
		}
	}

	md, _ := NewMetadata(displayName, extra)
	return md
}
