package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxclinic/sessiond/internal/config"
	"github.com/luxclinic/sessiond/internal/server"
)

func TestGoldenPath(t *testing.T) {
	// 1. Setup Infrastructure
	// MongoDB (Container)
	db, cleanupDB := SetupTestDB(t)
	defer cleanupDB()

	// Redis (Miniredis for speed/simplicity)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer redisClient.Close()

	// Mock auth provider
	mockProvider := NewMockProvider()

	// Config (minimal)
	cfg := &config.Config{}
	cfg.Server.MaxUploadSizeMB = 10
	cfg.Session.LoadTimeout = 5 * time.Second

	// 2. Initialize App
	app, sessions, err := server.NewApp(server.AppDependencies{
		Config:      cfg,
		MongoDB:     db,
		RedisClient: redisClient,
		Provider:    mockProvider,
		Accounts:    mockProvider,
	})
	require.NoError(t, err)
	defer sessions.Close()

	// Helper for requests
	request := func(method, path string, body interface{}) *http.Response {
		var bodyReader io.Reader
		if body != nil {
			jsonBytes, _ := json.Marshal(body)
			bodyReader = bytes.NewReader(jsonBytes)
		}
		req, _ := http.NewRequest(method, path, bodyReader)
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	decode := func(resp *http.Response) map[string]interface{} {
		var data map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
		return data
	}

	// sessionState polls until the manager has settled after the async
	// profile load triggered by sign-in/sign-up events.
	sessionSettled := func(check func(data map[string]interface{}) bool) map[string]interface{} {
		var data map[string]interface{}
		require.Eventually(t, func() bool {
			resp := request("GET", "/v1/session", nil)
			if resp.StatusCode != 200 {
				return false
			}
			data = decode(resp)
			if loading, _ := data["loading"].(bool); loading {
				return false
			}
			return check(data)
		}, 5*time.Second, 50*time.Millisecond)
		return data
	}

	// ==========================================
	// STEP 1: Register a clinic
	// ==========================================
	resp := request("POST", "/v1/auth/signup", map[string]string{
		"email":             "dra.ana@clinic.test",
		"password":          "secret-pw",
		"full_name":         "Dra. Ana",
		"organization_name": "Clínica São Paulo",
	})
	require.Equal(t, 201, resp.StatusCode)

	signupData := decode(resp)
	assert.Equal(t, false, signupData["confirmation_required"])
	org := signupData["organization"].(map[string]interface{})
	orgID := org["id"].(string)
	require.NotEmpty(t, orgID)
	assert.Contains(t, org["slug"], "clinica-sao-paulo-")

	fmt.Println("✓ Clinic registered:", orgID)

	// ==========================================
	// STEP 2: Session settles with profile + organization
	// ==========================================
	state := sessionSettled(func(data map[string]interface{}) bool {
		return data["profile"] != nil && data["organization"] != nil
	})

	profile := state["profile"].(map[string]interface{})
	assert.Equal(t, "uid-dra.ana@clinic.test", profile["id"])
	assert.Equal(t, "admin", profile["role"])
	assert.Equal(t, orgID, profile["organization_id"])

	stateOrg := state["organization"].(map[string]interface{})
	assert.Equal(t, "Clínica São Paulo", stateOrg["name"])
	assert.Equal(t, false, state["is_super_admin"])

	fmt.Println("✓ Session loaded for clinic admin")

	// ==========================================
	// STEP 3: Default settings were created atomically
	// ==========================================
	count, err := db.Collection("organization_settings").CountDocuments(context.Background(), map[string]interface{}{
		"organization_id": orgID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// ==========================================
	// STEP 4: Sign out clears everything
	// ==========================================
	resp = request("POST", "/v1/auth/logout", nil)
	require.Equal(t, 200, resp.StatusCode)

	state = sessionSettled(func(data map[string]interface{}) bool {
		return data["profile"] == nil
	})
	assert.Equal(t, false, state["signed_in"])
	assert.Nil(t, state["organization"])

	fmt.Println("✓ Signed out")

	// ==========================================
	// STEP 5: Super admin signs in
	// ==========================================
	// Seed the super admin profile; the account exists at the provider.
	_, err = db.Collection("profiles").InsertOne(context.Background(), map[string]interface{}{
		"_id":            "uid-super",
		"full_name":      "Platform Root",
		"role":           "admin",
		"is_active":      true,
		"is_super_admin": true,
	})
	require.NoError(t, err)
	mockProvider.AddUser("uid-super", "root@luxclinic.test", "root-pw")

	resp = request("POST", "/v1/auth/login", map[string]string{
		"email":    "root@luxclinic.test",
		"password": "root-pw",
	})
	require.Equal(t, 200, resp.StatusCode)

	state = sessionSettled(func(data map[string]interface{}) bool {
		return data["profile"] != nil
	})
	assert.Equal(t, true, state["is_super_admin"])
	assert.Nil(t, state["organization"], "super admin has no organization")

	fmt.Println("✓ Super admin signed in")

	// ==========================================
	// STEP 6: Provision a clinic on behalf of its admin
	// ==========================================
	resp = request("POST", "/v1/admin/organizations", map[string]string{
		"email":             "dr.bruno@clinic.test",
		"password":          "bruno-pw",
		"full_name":         "Dr. Bruno",
		"organization_name": "Clínica Niterói",
	})
	require.Equal(t, 201, resp.StatusCode)

	provisionData := decode(resp)
	provisioned := provisionData["organization"].(map[string]interface{})
	assert.Contains(t, provisioned["slug"], "clinica-niteroi-")

	fmt.Println("✓ Clinic provisioned:", provisioned["id"])

	// ==========================================
	// STEP 7: List organizations with member counts
	// ==========================================
	resp = request("GET", "/v1/admin/organizations", nil)
	require.Equal(t, 200, resp.StatusCode)

	listData := decode(resp)
	orgs := listData["organizations"].([]interface{})
	require.Len(t, orgs, 2)
	for _, raw := range orgs {
		entry := raw.(map[string]interface{})
		assert.Equal(t, float64(1), entry["member_count"], "each clinic has its admin profile")
	}

	fmt.Println("✓ Organizations listed")

	// ==========================================
	// STEP 8: Deactivate a clinic
	// ==========================================
	resp = request("PATCH", "/v1/admin/organizations/"+orgID+"/active", map[string]bool{
		"is_active": false,
	})
	require.Equal(t, 200, resp.StatusCode)

	resp = request("GET", "/v1/admin/organizations", nil)
	require.Equal(t, 200, resp.StatusCode)
	listData = decode(resp)
	for _, raw := range listData["organizations"].([]interface{}) {
		entry := raw.(map[string]interface{})
		if entry["id"] == orgID {
			assert.Equal(t, false, entry["is_active"])
		}
	}

	fmt.Println("✓ Clinic deactivated")

	// ==========================================
	// STEP 9: Admin routes reject non-super-admins
	// ==========================================
	resp = request("POST", "/v1/auth/logout", nil)
	require.Equal(t, 200, resp.StatusCode)
	sessionSettled(func(data map[string]interface{}) bool {
		return data["profile"] == nil
	})

	resp = request("GET", "/v1/admin/organizations", nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp = request("POST", "/v1/auth/login", map[string]string{
		"email":    "dr.bruno@clinic.test",
		"password": "bruno-pw",
	})
	require.Equal(t, 200, resp.StatusCode)
	sessionSettled(func(data map[string]interface{}) bool {
		return data["profile"] != nil
	})

	resp = request("GET", "/v1/admin/organizations", nil)
	assert.Equal(t, 403, resp.StatusCode)

	fmt.Println("✓ Admin routes guarded")
}
