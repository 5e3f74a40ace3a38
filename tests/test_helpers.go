package tests

import (
	"context"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/luxclinic/sessiond/internal/domain"
	"github.com/luxclinic/sessiond/internal/provider/gotrue"
)

// SetupTestDB spins up a fresh MongoDB container and returns the database connection
// along with a cleanup function.
func SetupTestDB(t *testing.T) (*mongo.Database, func()) {
	ctx := context.Background()

	mongodbContainer, err := mongodb.Run(ctx, "mongo:latest")
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}

	endpoint, err := mongodbContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}

	return mongoClient.Database("test_db"), func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf("failed to disconnect mongo: %v", err)
		}
		if err := mongodbContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %v", err)
		}
	}
}

// mockAccount is a registered credential set in the mock provider.
type mockAccount struct {
	ID       string
	Email    string
	Password string
}

// MockProvider implements domain.IdentityProvider and the admin account
// surface without a real auth backend.
type MockProvider struct {
	mu         sync.Mutex
	accounts   map[string]*mockAccount // keyed by email
	session    *domain.Identity
	subscriber func(domain.SessionEvent)
	deleted    []string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		accounts: make(map[string]*mockAccount),
	}
}

// AddUser registers a credential set that SignInWithPassword accepts.
func (m *MockProvider) AddUser(id, email, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[email] = &mockAccount{ID: id, Email: email, Password: password}
}

func (m *MockProvider) emit(ev domain.SessionEvent) {
	m.mu.Lock()
	fn := m.subscriber
	m.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (m *MockProvider) Subscribe(fn func(domain.SessionEvent)) func() {
	m.mu.Lock()
	m.subscriber = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.subscriber = nil
		m.mu.Unlock()
	}
}

func (m *MockProvider) CurrentSession(ctx context.Context) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	m.mu.Lock()
	account, ok := m.accounts[email]
	if !ok || account.Password != password {
		m.mu.Unlock()
		return nil, fmt.Errorf("invalid mock credentials")
	}
	ident := &domain.Identity{
		ID:        account.ID,
		Email:     account.Email,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	m.session = ident
	m.mu.Unlock()

	m.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: ident})
	return ident, nil
}

func (m *MockProvider) SignUp(ctx context.Context, email, password string) (*domain.SignUpResult, error) {
	ident := &domain.Identity{
		ID:        "uid-" + email,
		Email:     email,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	m.mu.Lock()
	m.accounts[email] = &mockAccount{ID: ident.ID, Email: email, Password: password}
	m.session = ident
	m.mu.Unlock()

	m.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: ident})
	return &domain.SignUpResult{Identity: ident, Session: ident}, nil
}

func (m *MockProvider) SignOut(ctx context.Context) error {
	m.mu.Lock()
	hadSession := m.session != nil
	m.session = nil
	m.mu.Unlock()

	m.emit(domain.SessionEvent{Kind: domain.EventSignedOut})
	if !hadSession {
		return domain.ErrSessionMissing
	}
	return nil
}

func (m *MockProvider) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	return nil
}

func (m *MockProvider) UpdatePassword(ctx context.Context, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.ErrSessionMissing
	}
	if account, ok := m.accounts[m.session.Email]; ok {
		account.Password = newPassword
	}
	return nil
}

func (m *MockProvider) SetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Identity, error) {
	return nil, fmt.Errorf("not supported by mock provider")
}

// AdminCreateUser provisions an account the way the real admin API does.
func (m *MockProvider) AdminCreateUser(ctx context.Context, email, password string) (*gotrue.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[email]; exists {
		return nil, fmt.Errorf("email already registered")
	}
	id := "uid-" + email
	m.accounts[email] = &mockAccount{ID: id, Email: email, Password: password}
	return &gotrue.AdminUser{ID: id, Email: email}, nil
}

func (m *MockProvider) AdminDeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, account := range m.accounts {
		if account.ID == id {
			delete(m.accounts, email)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return domain.ErrNotFound
}
