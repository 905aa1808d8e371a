// ABOUTME: Tests for local user directory database operations
// ABOUTME: Covers account creation, lookups, and username uniqueness
package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stlnu/dealsync/models"
)

func TestCreateUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := &models.User{
		Username:    "1234",
		Email:       "anna@stl.nu",
		DisplayName: "Anna Svensson",
		Role:        "seller",
	}
	if err := CreateUser(db, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == uuid.Nil {
		t.Error("User ID was not set")
	}

	found, err := GetUser(db, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected user, got nil")
	}
	if found.Username != "1234" || found.Email != "anna@stl.nu" {
		t.Errorf("User not round-tripped: %+v", found)
	}
}

func TestUsernameUnique(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := CreateUser(db, &models.User{Username: "1234"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := CreateUser(db, &models.User{Username: "1234"}); err == nil {
		t.Error("Expected unique constraint violation for duplicate username")
	}
}

func TestFindUserByUsername(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := CreateUser(db, &models.User{Username: "1234"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	found, err := FindUserByUsername(db, "1234")
	if err != nil {
		t.Fatalf("FindUserByUsername failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected user")
	}

	missing, err := FindUserByUsername(db, "9999")
	if err != nil {
		t.Fatalf("FindUserByUsername failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for unknown username")
	}
}

func TestFindUserByEmail(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := CreateUser(db, &models.User{Username: "1234", Email: "Anna@stl.nu"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	found, err := FindUserByEmail(db, "anna@STL.nu")
	if err != nil {
		t.Fatalf("FindUserByEmail failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected user via case-insensitive email lookup")
	}
	if found.Username != "1234" {
		t.Errorf("Wrong user: %s", found.Username)
	}
}

func TestUserIsInRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := &models.User{Username: "1234", Role: "admin"}
	if err := CreateUser(db, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	isAdmin, err := UserIsInRole(db, user.ID, "admin")
	if err != nil {
		t.Fatalf("UserIsInRole failed: %v", err)
	}
	if !isAdmin {
		t.Error("Expected user to be admin")
	}

	isSeller, err := UserIsInRole(db, user.ID, "seller")
	if err != nil {
		t.Fatalf("UserIsInRole failed: %v", err)
	}
	if isSeller {
		t.Error("Expected user not to be seller")
	}
}

func TestListUsers(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for _, name := range []string{"3456", "1234", "2345"} {
		if err := CreateUser(db, &models.User{Username: name}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	users, err := ListUsers(db)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("Expected 3 users, got %d", len(users))
	}
	if users[0].Username != "1234" {
		t.Errorf("Expected ordering by username, got %s first", users[0].Username)
	}
}
