// ABOUTME: Canonical parsing of CRM deal payloads into domain records
// ABOUTME: Tolerant property lookup, ordered date parsing, and payload hashing
package crm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Deal is one parsed CRM deal, independent of local storage.
type Deal struct {
	ExternalID    string
	Name          string
	OwnerID       string
	OwnerEmail    string
	SellerID      string
	Stage         string
	FulfilledDate *time.Time
	Amount        *float64
	Provision     *float64
	CurrencyCode  string
	LastModified  *time.Time
	PayloadHash   string
	ContactIDs    []string
}

// DealPage is one page of deals plus the cursor for the next, empty when the
// listing is exhausted.
type DealPage struct {
	Deals      []Deal
	NextCursor string
}

// Owner is a CRM salesperson record.
type Owner struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	Archived    bool
	Teams       []string
	PrimaryTeam string
}

// PropertyOption is one enumerated option of a CRM property.
type PropertyOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PipelineStage is one stage of a deal pipeline.
type PipelineStage struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Wire envelopes. Each result is kept as raw bytes so the payload hash covers
// exactly what the API returned for that deal.
type listEnvelope struct {
	Results []json.RawMessage `json:"results"`
	Paging  *pagingEnvelope   `json:"paging"`
}

type pagingEnvelope struct {
	Next *struct {
		After string `json:"after"`
	} `json:"next"`
}

func (e *listEnvelope) nextCursor() string {
	if e.Paging != nil && e.Paging.Next != nil {
		return e.Paging.Next.After
	}
	return ""
}

type dealItem struct {
	ID           json.Number       `json:"id"`
	Properties   map[string]string `json:"properties"`
	Associations *struct {
		Contacts struct {
			Results []struct {
				ID json.Number `json:"id"`
			} `json:"results"`
		} `json:"contacts"`
	} `json:"associations"`
}

// parseDeal converts one raw API result into a Deal using the configured
// property names. Returns nil when the payload has no usable external id.
func parseDeal(cfg *Config, raw json.RawMessage) *Deal {
	var item dealItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil
	}
	if item.ID.String() == "" {
		return nil
	}

	deal := &Deal{
		ExternalID:   item.ID.String(),
		Name:         propertyValue(item.Properties, cfg.DealNameProperty),
		OwnerID:      propertyValue(item.Properties, cfg.OwnerIDProperty),
		OwnerEmail:   firstEmail(propertyValue(item.Properties, cfg.OwnerEmailProperty)),
		SellerID:     strings.TrimSpace(propertyValue(item.Properties, cfg.SellerIDProperty)),
		Stage:        propertyValue(item.Properties, cfg.FulfilledProperty),
		CurrencyCode: propertyValue(item.Properties, cfg.CurrencyCodeProperty),
		PayloadHash:  hashPayload(raw),
	}

	deal.FulfilledDate = parseCRMDate(propertyValue(item.Properties, cfg.FulfilledDateProperty))
	if deal.FulfilledDate == nil && cfg.DealFallbackDateProperty != "" {
		deal.FulfilledDate = parseCRMDate(propertyValue(item.Properties, cfg.DealFallbackDateProperty))
	}
	deal.LastModified = parseCRMDate(propertyValue(item.Properties, cfg.LastModifiedProperty))
	deal.Amount = parseNullableFloat(propertyValue(item.Properties, cfg.AmountProperty))
	if cfg.ProvisionProperty != "" {
		deal.Provision = parseNullableFloat(propertyValue(item.Properties, cfg.ProvisionProperty))
	}

	if item.Associations != nil {
		for _, c := range item.Associations.Contacts.Results {
			if id := c.ID.String(); id != "" {
				deal.ContactIDs = append(deal.ContactIDs, id)
			}
		}
	}

	return deal
}

// propertyValue reads a property by name, falling back to an accent- and
// case-insensitive key match so "Säljid" finds "saljid".
func propertyValue(props map[string]string, key string) string {
	if key == "" || props == nil {
		return ""
	}
	if v, ok := props[key]; ok {
		return v
	}
	want := normalizeLookupKey(key)
	if want == "" {
		return ""
	}
	for k, v := range props {
		if normalizeLookupKey(k) == want {
			return v
		}
	}
	return ""
}

// firstEmail takes the first address of a semicolon-separated owner email
// list.
func firstEmail(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

// parseCRMDate tries the formats the CRM emits, in order: epoch
// milliseconds, plain date, ISO datetime. Returns nil when nothing parses.
func parseCRMDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

func parseNullableFloat(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

// hashPayload is the SHA-256 hex digest of one deal's raw API payload.
func hashPayload(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// epochMillis renders a time as the epoch-millisecond string the search API
// filters expect.
func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
