// ABOUTME: HTTP client for the CRM REST API
// ABOUTME: Deal listing with contact enrichment, window search, owner lookup with caching
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const associationBatchSize = 100

// Client talks to the CRM REST API. The owner cache lives on the client and
// holds negative entries too; reset it at the start of each sync run so owner
// metadata stays fresh per run without hammering the API per deal.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	baseURL    string

	ownerCache map[string]*Owner // nil value = known missing
}

// NewClient builds a client authenticating with the configured bearer token.
func NewClient(cfg *Config) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.HTTPTimeout

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		ownerCache: make(map[string]*Owner),
	}
}

// ResetOwnerCache drops all cached owner lookups, including negatives.
func (c *Client) ResetOwnerCache() {
	c.ownerCache = make(map[string]*Owner)
}

// dealProperties is the property list requested on every deal read.
func (c *Client) dealProperties() []string {
	props := []string{
		c.cfg.DealNameProperty,
		c.cfg.OwnerIDProperty,
		c.cfg.OwnerEmailProperty,
		c.cfg.SellerIDProperty,
		c.cfg.FulfilledProperty,
		c.cfg.FulfilledDateProperty,
		c.cfg.LastModifiedProperty,
		c.cfg.AmountProperty,
	}
	for _, opt := range []string{c.cfg.DealFallbackDateProperty, c.cfg.CurrencyCodeProperty, c.cfg.ProvisionProperty} {
		if opt != "" {
			props = append(props, opt)
		}
	}
	return props
}

// FetchDealsPage reads one page of the deal listing. Transport errors and
// non-2xx responses are logged and surface as an empty page so one bad page
// never fails a whole run. Records not modified since modifiedSince are
// dropped client-side.
func (c *Client) FetchDealsPage(ctx context.Context, modifiedSince *time.Time, cursor string, pageSize int) (*DealPage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", pageSize))
	q.Set("properties", strings.Join(c.dealProperties(), ","))
	q.Set("associations", "contacts")
	if cursor != "" {
		q.Set("after", cursor)
	}

	var envelope listEnvelope
	if !c.getJSON(ctx, "/crm/v3/objects/deals?"+q.Encode(), &envelope) {
		return &DealPage{}, nil
	}

	page := &DealPage{NextCursor: envelope.nextCursor()}
	for _, raw := range envelope.Results {
		deal := parseDeal(c.cfg, raw)
		if deal == nil {
			continue
		}
		if modifiedSince != nil && deal.LastModified != nil && deal.LastModified.Before(*modifiedSince) {
			continue
		}
		page.Deals = append(page.Deals, *deal)
	}

	c.enrichDealsWithContactData(ctx, page.Deals)

	return page, nil
}

// SearchDealsByFulfillmentWindow finds fulfilled deals whose fulfillment date
// falls inside [start, end] by searching contacts on the sale-date property,
// walking contact→deal associations, and batch-reading the deals. Seller
// number and sale date are stitched back from the contact when the deal
// itself lacks them.
func (c *Client) SearchDealsByFulfillmentWindow(ctx context.Context, start, end time.Time, cursor string, pageSize int) (*DealPage, error) {
	searchReq := map[string]any{
		"limit": pageSize,
		"filterGroups": []any{
			map[string]any{
				"filters": []any{
					map[string]any{
						"propertyName": c.cfg.ContactDateProperty,
						"operator":     "GTE",
						"value":        epochMillis(start),
					},
					map[string]any{
						"propertyName": c.cfg.ContactDateProperty,
						"operator":     "LTE",
						"value":        epochMillis(end),
					},
				},
			},
		},
		"properties": []string{c.cfg.ContactSellerProperty, c.cfg.ContactDateProperty},
	}
	if cursor != "" {
		searchReq["after"] = cursor
	}

	var searchResp struct {
		Results []struct {
			ID         json.Number       `json:"id"`
			Properties map[string]string `json:"properties"`
		} `json:"results"`
		Paging *pagingEnvelope `json:"paging"`
	}
	if !c.postJSON(ctx, "/crm/v3/objects/contacts/search", searchReq, &searchResp) {
		return &DealPage{}, nil
	}

	page := &DealPage{}
	if searchResp.Paging != nil && searchResp.Paging.Next != nil {
		page.NextCursor = searchResp.Paging.Next.After
	}

	type contactInfo struct {
		sellerID string
		saleDate *time.Time
	}
	contacts := make(map[string]contactInfo, len(searchResp.Results))
	var contactIDs []string
	for _, r := range searchResp.Results {
		id := r.ID.String()
		if id == "" {
			continue
		}
		contactIDs = append(contactIDs, id)
		contacts[id] = contactInfo{
			sellerID: strings.TrimSpace(propertyValue(r.Properties, c.cfg.ContactSellerProperty)),
			saleDate: parseCRMDate(propertyValue(r.Properties, c.cfg.ContactDateProperty)),
		}
	}
	if len(contactIDs) == 0 {
		return page, nil
	}

	dealToContact := c.contactDealAssociations(ctx, contactIDs)
	if len(dealToContact) == 0 {
		return page, nil
	}

	dealIDs := make([]string, 0, len(dealToContact))
	for dealID := range dealToContact {
		dealIDs = append(dealIDs, dealID)
	}

	for _, deal := range c.batchReadDeals(ctx, dealIDs) {
		info := contacts[dealToContact[deal.ExternalID]]
		if deal.SellerID == "" {
			deal.SellerID = info.sellerID
		}
		if deal.FulfilledDate == nil {
			deal.FulfilledDate = info.saleDate
		}
		if deal.FulfilledDate == nil {
			continue
		}
		if deal.FulfilledDate.Before(start) || deal.FulfilledDate.After(end) {
			continue
		}
		page.Deals = append(page.Deals, deal)
	}

	return page, nil
}

// contactDealAssociations maps deal id → contact id for the given contacts,
// batching the association read in chunks.
func (c *Client) contactDealAssociations(ctx context.Context, contactIDs []string) map[string]string {
	dealToContact := make(map[string]string)

	for offset := 0; offset < len(contactIDs); offset += associationBatchSize {
		chunkEnd := offset + associationBatchSize
		if chunkEnd > len(contactIDs) {
			chunkEnd = len(contactIDs)
		}
		chunk := contactIDs[offset:chunkEnd]

		inputs := make([]map[string]string, len(chunk))
		for i, id := range chunk {
			inputs[i] = map[string]string{"id": id}
		}

		var resp struct {
			Results []struct {
				From struct {
					ID json.Number `json:"id"`
				} `json:"from"`
				To []struct {
					ToObjectID json.Number `json:"toObjectId"`
				} `json:"to"`
			} `json:"results"`
		}
		if !c.postJSON(ctx, "/crm/v4/associations/contacts/deals/batch/read", map[string]any{"inputs": inputs}, &resp) {
			continue
		}

		for _, r := range resp.Results {
			contactID := r.From.ID.String()
			for _, to := range r.To {
				if dealID := to.ToObjectID.String(); dealID != "" {
					dealToContact[dealID] = contactID
				}
			}
		}
	}

	return dealToContact
}

// batchReadDeals reads full deal records by id, chunked.
func (c *Client) batchReadDeals(ctx context.Context, dealIDs []string) []Deal {
	var deals []Deal

	for offset := 0; offset < len(dealIDs); offset += associationBatchSize {
		chunkEnd := offset + associationBatchSize
		if chunkEnd > len(dealIDs) {
			chunkEnd = len(dealIDs)
		}
		chunk := dealIDs[offset:chunkEnd]

		inputs := make([]map[string]string, len(chunk))
		for i, id := range chunk {
			inputs[i] = map[string]string{"id": id}
		}

		var envelope listEnvelope
		body := map[string]any{
			"inputs":     inputs,
			"properties": c.dealProperties(),
		}
		if !c.postJSON(ctx, "/crm/v3/objects/deals/batch/read", body, &envelope) {
			continue
		}

		for _, raw := range envelope.Results {
			if deal := parseDeal(c.cfg, raw); deal != nil {
				deals = append(deals, *deal)
			}
		}
	}

	return deals
}

// enrichDealsWithContactData fills seller number and fulfillment date from
// associated contacts for deals missing either. The first contact carrying a
// value wins.
func (c *Client) enrichDealsWithContactData(ctx context.Context, deals []Deal) {
	needed := make(map[string]bool)
	for i := range deals {
		if deals[i].SellerID != "" && deals[i].FulfilledDate != nil {
			continue
		}
		if len(deals[i].ContactIDs) == 0 {
			deals[i].ContactIDs = c.dealContactIDs(ctx, deals[i].ExternalID)
		}
		for _, id := range deals[i].ContactIDs {
			needed[id] = true
		}
	}
	if len(needed) == 0 {
		return
	}

	contactIDs := make([]string, 0, len(needed))
	for id := range needed {
		contactIDs = append(contactIDs, id)
	}

	type contactInfo struct {
		sellerID string
		saleDate *time.Time
	}
	contacts := make(map[string]contactInfo)

	for offset := 0; offset < len(contactIDs); offset += associationBatchSize {
		chunkEnd := offset + associationBatchSize
		if chunkEnd > len(contactIDs) {
			chunkEnd = len(contactIDs)
		}
		chunk := contactIDs[offset:chunkEnd]

		inputs := make([]map[string]string, len(chunk))
		for i, id := range chunk {
			inputs[i] = map[string]string{"id": id}
		}

		var resp struct {
			Results []struct {
				ID         json.Number       `json:"id"`
				Properties map[string]string `json:"properties"`
			} `json:"results"`
		}
		body := map[string]any{
			"inputs":     inputs,
			"properties": []string{c.cfg.ContactSellerProperty, c.cfg.ContactDateProperty},
		}
		if !c.postJSON(ctx, "/crm/v3/objects/contacts/batch/read", body, &resp) {
			continue
		}

		for _, r := range resp.Results {
			contacts[r.ID.String()] = contactInfo{
				sellerID: strings.TrimSpace(propertyValue(r.Properties, c.cfg.ContactSellerProperty)),
				saleDate: parseCRMDate(propertyValue(r.Properties, c.cfg.ContactDateProperty)),
			}
		}
	}

	for i := range deals {
		for _, contactID := range deals[i].ContactIDs {
			info, ok := contacts[contactID]
			if !ok {
				continue
			}
			if deals[i].SellerID == "" && info.sellerID != "" {
				deals[i].SellerID = info.sellerID
			}
			if deals[i].FulfilledDate == nil && info.saleDate != nil {
				deals[i].FulfilledDate = info.saleDate
			}
			if deals[i].SellerID != "" && deals[i].FulfilledDate != nil {
				break
			}
		}
	}
}

// dealContactIDs looks up contact associations for one deal when the listing
// did not embed them.
func (c *Client) dealContactIDs(ctx context.Context, dealID string) []string {
	var resp struct {
		Results []struct {
			ToObjectID json.Number `json:"toObjectId"`
		} `json:"results"`
	}
	if !c.getJSON(ctx, "/crm/v4/objects/deals/"+url.PathEscape(dealID)+"/associations/contacts", &resp) {
		return nil
	}

	var ids []string
	for _, r := range resp.Results {
		if id := r.ToObjectID.String(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetOwner fetches a CRM owner record. Lookups are cached on the client,
// misses included. A 404 retries once with archived=true since deals keep
// referencing owners after offboarding.
func (c *Client) GetOwner(ctx context.Context, ownerID string) (*Owner, error) {
	if ownerID == "" {
		return nil, nil
	}
	if owner, ok := c.ownerCache[ownerID]; ok {
		return owner, nil
	}

	owner, status, err := c.fetchOwner(ctx, ownerID, false)
	if err != nil {
		return nil, err
	}
	if owner == nil && status == http.StatusNotFound {
		owner, _, err = c.fetchOwner(ctx, ownerID, true)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			owner.Archived = true
		}
	}

	c.ownerCache[ownerID] = owner
	return owner, nil
}

func (c *Client) fetchOwner(ctx context.Context, ownerID string, archived bool) (*Owner, int, error) {
	path := "/crm/v3/owners/" + url.PathEscape(ownerID)
	if archived {
		path += "?archived=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch owner %s: %w", ownerID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("owner lookup returned status %d", resp.StatusCode)
	}

	var body struct {
		ID        json.Number `json:"id"`
		Email     string      `json:"email"`
		FirstName string      `json:"firstName"`
		LastName  string      `json:"lastName"`
		Archived  bool        `json:"archived"`
		Teams     []struct {
			Name    string `json:"name"`
			Primary bool   `json:"primary"`
		} `json:"teams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode owner: %w", err)
	}

	owner := &Owner{
		ID:        body.ID.String(),
		Email:     body.Email,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Archived:  body.Archived,
	}
	for _, team := range body.Teams {
		owner.Teams = append(owner.Teams, team.Name)
		if owner.PrimaryTeam == "" && team.Primary {
			owner.PrimaryTeam = team.Name
		}
	}
	if owner.PrimaryTeam == "" && len(owner.Teams) > 0 {
		owner.PrimaryTeam = owner.Teams[0]
	}

	return owner, resp.StatusCode, nil
}

// FetchDealPropertyOptions reads the enumerated options of one deal property.
func (c *Client) FetchDealPropertyOptions(property string) ([]PropertyOption, error) {
	var body struct {
		Options []PropertyOption `json:"options"`
	}
	path := "/crm/v3/properties/deals/" + url.PathEscape(property)
	if err := c.getJSONStrict(context.Background(), path, &body); err != nil {
		return nil, err
	}
	return body.Options, nil
}

// FetchPipelineStages reads every stage of every deal pipeline.
func (c *Client) FetchPipelineStages() ([]PipelineStage, error) {
	var body struct {
		Results []struct {
			Stages []PipelineStage `json:"stages"`
		} `json:"results"`
	}
	if err := c.getJSONStrict(context.Background(), "/crm/v3/pipelines/deals", &body); err != nil {
		return nil, err
	}

	var stages []PipelineStage
	for _, pipeline := range body.Results {
		stages = append(stages, pipeline.Stages...)
	}
	return stages, nil
}

// getJSON performs a GET and decodes the body. Failures are logged and
// reported as false, never as an error, matching the degrade-to-empty policy
// for page fetches.
func (c *Client) getJSON(ctx context.Context, path string, out any) bool {
	if err := c.getJSONStrict(ctx, path, out); err != nil {
		log.Printf("CRM request failed: %v", err)
		return false
	}
	return true
}

func (c *Client) getJSONStrict(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

// postJSON performs a POST with a JSON body, with the same degrade-to-empty
// failure policy as getJSON.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) bool {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("CRM request failed: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		log.Printf("CRM request failed: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.doJSON(req, out); err != nil {
		log.Printf("CRM request failed: %v", err)
		return false
	}
	return true
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
