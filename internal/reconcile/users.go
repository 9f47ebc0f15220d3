package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
)

// UserStore is the subset of the store needed to resolve assignees.
type UserStore interface {
	GetUserByAccountID(ctx context.Context, accountID string) (*model.User, error)
	SaveUser(ctx context.Context, user model.User) error
}

// UserResolver maps remote account ids to local user ids, creating stub
// users for accounts not seen by the user stage. A resolver is meant to
// live for one sync run.
type UserResolver struct {
	users UserStore

	mu    sync.Mutex
	cache map[string]string
	stubs int
}

// NewUserResolver creates a resolver backed by users.
func NewUserResolver(users UserStore) *UserResolver {
	return &UserResolver{users: users, cache: make(map[string]string)}
}

// Resolve returns the local user id for accountID. An empty accountID
// resolves to nil. Repeated calls for the same account return the same
// persistent id, across runs as well.
func (r *UserResolver) Resolve(ctx context.Context, accountID, displayName string) (*string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.cache[accountID]; ok {
		return &id, nil
	}

	existing, err := r.users.GetUserByAccountID(ctx, accountID)
	switch {
	case err == nil:
		r.cache[accountID] = existing.ID
		return &existing.ID, nil
	case !store.IsNotFound(err):
		return nil, fmt.Errorf("looking up user %s: %w", accountID, err)
	}

	acc := accountID
	stub := model.User{
		ID:              uuid.New().String(),
		RemoteAccountID: &acc,
		Email:           model.StubEmail(accountID),
		DisplayName:     displayName,
		Active:          true,
		Source:          model.UserSourceRemote,
		IsStub:          true,
	}
	if err := r.users.SaveUser(ctx, stub); err != nil {
		return nil, fmt.Errorf("creating stub user %s: %w", accountID, err)
	}
	logger.Info("created stub user for unknown assignee", logger.F("account", accountID))

	r.cache[accountID] = stub.ID
	r.stubs++
	return &stub.ID, nil
}

// StubsCreated reports how many stub users this resolver created.
func (r *UserResolver) StubsCreated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stubs
}
