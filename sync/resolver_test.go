// ABOUTME: Tests for owner resolution strategies and mapping maintenance
// ABOUTME: Covers strategy order, sticky links, and derived-username extraction
package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stlnu/dealsync/crm"
	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

func TestExtractEmployeeUsername(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"1234@stl.nu", "1234"},
		{"1234@STL.NU", "1234"},
		{" 1234@stl.nu ", "1234"},
		{"1234@other.se", ""},
		{"anna@stl.nu", ""},
		{"12345@stl.nu", ""},
		{"123@stl.nu", ""},
		{"not-an-email", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractEmployeeUsername(tt.email, "stl.nu"), "email %q", tt.email)
	}
}

func resolverFixture(t *testing.T, cfg *crm.Config, client CRMClient) (*OwnerResolver, *models.User) {
	t.Helper()
	database := setupTestDB(t)
	user := &models.User{Username: "1234", Email: "1234@stl.nu"}
	require.NoError(t, db.CreateUser(database, user))
	return NewOwnerResolver(database, cfg, client), user
}

func TestResolveViaLinkedMapping(t *testing.T) {
	cfg := testEngineConfig()
	client := &fakeClient{owners: map[string]*crm.Owner{"901": {ID: "901"}}}
	resolver, user := resolverFixture(t, cfg, client)

	require.NoError(t, db.SaveOwnerMapping(resolver.db, &models.OwnerMapping{
		CRMOwnerID: "901",
		UserID:     &user.ID,
		Username:   user.Username,
		LastSeen:   time.Now().UTC(),
	}))

	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)
	resolved, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestResolveViaSellerNumber(t *testing.T) {
	cfg := testEngineConfig()
	client := &fakeClient{owners: map[string]*crm.Owner{"901": {ID: "901"}}}
	resolver, user := resolverFixture(t, cfg, client)

	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)
	deal.SellerID = "1234"

	resolved, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID)

	// Resolution also writes the user link onto the mapping
	mapping, err := db.GetOwnerMappingByOwnerID(resolver.db, "901")
	require.NoError(t, err)
	require.NotNil(t, mapping)
	require.NotNil(t, mapping.UserID)
	assert.Equal(t, user.ID, *mapping.UserID)
	assert.Equal(t, "1234", mapping.Username)
}

func TestResolveViaDerivedEmail(t *testing.T) {
	cfg := testEngineConfig()
	client := &fakeClient{owners: map[string]*crm.Owner{
		"901": {ID: "901", Email: "1234@stl.nu"},
	}}
	resolver, user := resolverFixture(t, cfg, client)

	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)

	resolved, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestResolveUnresolvable(t *testing.T) {
	cfg := testEngineConfig()
	client := &fakeClient{owners: map[string]*crm.Owner{
		"901": {ID: "901", Email: "someone@elsewhere.com"},
	}}
	resolver, _ := resolverFixture(t, cfg, client)

	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)

	resolved, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)
	assert.Nil(t, resolved, "no strategy matches")

	// Mapping still maintained for later manual linking
	mapping, err := db.GetOwnerMappingByOwnerID(resolver.db, "901")
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, "someone@elsewhere.com", mapping.Email)
	assert.Nil(t, mapping.UserID)
}

func TestResolveWithoutOwnerRecordTouchesLastSeen(t *testing.T) {
	cfg := testEngineConfig()
	resolver, _ := resolverFixture(t, cfg, &fakeClient{})

	seen := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.SaveOwnerMapping(resolver.db, &models.OwnerMapping{
		CRMOwnerID: "901",
		Email:      "anna@stl.nu",
		FirstName:  "Anna",
		LastSeen:   seen,
	}))

	// Owner lookup comes back empty and the deal carries nothing new
	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)

	_, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)

	mapping, err := db.GetOwnerMappingByOwnerID(resolver.db, "901")
	require.NoError(t, err)
	assert.Equal(t, "Anna", mapping.FirstName, "stored metadata untouched")
	assert.Equal(t, "anna@stl.nu", mapping.Email)
	assert.True(t, mapping.LastSeen.After(seen), "last_seen stamped")
}

func TestMappingLinkIsSticky(t *testing.T) {
	cfg := testEngineConfig()
	client := &fakeClient{owners: map[string]*crm.Owner{"901": {ID: "901"}}}
	resolver, user := resolverFixture(t, cfg, client)

	other := &models.User{Username: "5678"}
	require.NoError(t, db.CreateUser(resolver.db, other))

	// Manually linked to `other`
	require.NoError(t, db.SaveOwnerMapping(resolver.db, &models.OwnerMapping{
		CRMOwnerID: "901",
		UserID:     &other.ID,
		Username:   other.Username,
		LastSeen:   time.Now().UTC(),
	}))

	// A deal whose seller number points at a different user
	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)
	deal.SellerID = user.Username

	resolved, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)
	require.NotNil(t, resolved)

	mapping, err := db.GetOwnerMappingByOwnerID(resolver.db, "901")
	require.NoError(t, err)
	require.NotNil(t, mapping.UserID)
	assert.Equal(t, other.ID, *mapping.UserID, "existing link never overwritten")
}

func TestSellerModeIgnoresMappingLink(t *testing.T) {
	cfg := testEngineConfig()
	cfg.ResolutionMode = crm.ResolutionModeSeller
	client := &fakeClient{owners: map[string]*crm.Owner{"901": {ID: "901"}}}
	resolver, user := resolverFixture(t, cfg, client)

	other := &models.User{Username: "5678"}
	require.NoError(t, db.CreateUser(resolver.db, other))
	require.NoError(t, db.SaveOwnerMapping(resolver.db, &models.OwnerMapping{
		CRMOwnerID: "901",
		UserID:     &other.ID,
		LastSeen:   time.Now().UTC(),
	}))

	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)
	deal.SellerID = user.Username

	resolved, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID, "seller number wins over the mapping link")
}

func TestUnlink(t *testing.T) {
	cfg := testEngineConfig()
	resolver, user := resolverFixture(t, cfg, &fakeClient{})

	require.NoError(t, db.SaveOwnerMapping(resolver.db, &models.OwnerMapping{
		CRMOwnerID: "901",
		UserID:     &user.ID,
		Username:   user.Username,
		LastSeen:   time.Now().UTC(),
	}))

	require.NoError(t, resolver.Unlink("901"))

	mapping, err := db.GetOwnerMappingByOwnerID(resolver.db, "901")
	require.NoError(t, err)
	assert.Nil(t, mapping.UserID)
}

func TestMappingMetadataFirstNonEmpty(t *testing.T) {
	cfg := testEngineConfig()

	// Owner record carries no email, the deal does
	client := &fakeClient{owners: map[string]*crm.Owner{
		"901": {ID: "901", FirstName: "Anna", LastName: "Svensson", Teams: []string{"Nord", "Alla"}, PrimaryTeam: "Nord"},
	}}
	resolver, _ := resolverFixture(t, cfg, client)

	date := time.Now().UTC()
	deal := fulfilledDeal("1", "901", date)
	deal.OwnerEmail = "anna@stl.nu"

	_, err := resolver.Resolve(context.Background(), &deal)
	require.NoError(t, err)

	mapping, err := db.GetOwnerMappingByOwnerID(resolver.db, "901")
	require.NoError(t, err)
	assert.Equal(t, "anna@stl.nu", mapping.Email, "deal email fills the gap")
	assert.Equal(t, "Nord | Alla", mapping.TeamNames)
	assert.Equal(t, "Nord", mapping.PrimaryTeamName)
	assert.NotNil(t, mapping.LastOwnerSync)
}
