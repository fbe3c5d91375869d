package session

import (
	"chat-client/domain"
	"chat-client/errors"
	"chat-client/mocks"
	"chat-client/storage"
	"chat-client/transport"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func aliceCredentials() domain.Credentials {
	return domain.Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Identity: domain.Identity{
			UserID:      "user-alice",
			Email:       "alice@example.com",
			DisplayName: "alice",
		},
	}
}

func newManager(t *testing.T) (*Manager, *mocks.MockAuthAPI, *storage.MemoryStore) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAuthAPI(ctrl)
	store := storage.NewMemoryStore()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewManager(store, api, log), api, store
}

func TestManager_Store(t *testing.T) {
	t.Run("should persist a complete credential set", func(t *testing.T) {
		req := require.New(t)
		manager, _, _ := newManager(t)

		req.NoError(manager.Store(aliceCredentials()))

		identity, ok := manager.Current()
		req.True(ok)
		req.Equal(aliceCredentials().Identity, identity)
		creds, ok := manager.Credentials()
		req.True(ok)
		req.Equal(aliceCredentials(), creds)
	})

	t.Run("should ignore a partial credential set", func(t *testing.T) {
		req := require.New(t)
		manager, _, store := newManager(t)
		partial := aliceCredentials()
		partial.Identity.Email = ""

		req.NoError(manager.Store(partial))

		_, ok := manager.Current()
		req.False(ok)
		_, ok, _ = store.Get(KeyAccessToken)
		req.False(ok)
	})

	t.Run("should treat partially persisted fields as absent", func(t *testing.T) {
		req := require.New(t)
		manager, _, store := newManager(t)
		req.NoError(store.Set(KeyUserID, "user-alice"))
		req.NoError(store.Set(KeyAccessToken, "access-1"))

		_, ok := manager.Current()
		req.False(ok)
		req.False(manager.IsLoggedIn())
	})

	t.Run("should drop the refresh token of a previous session", func(t *testing.T) {
		req := require.New(t)
		manager, _, _ := newManager(t)
		req.NoError(manager.Store(aliceCredentials()))

		next := aliceCredentials()
		next.AccessToken = "access-2"
		next.RefreshToken = ""
		req.NoError(manager.Store(next))

		_, ok := manager.RefreshToken()
		req.False(ok)
	})

	t.Run("should roll back when a write fails", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockKeyValueStore(ctrl)
		manager := NewManager(store, mocks.NewMockAuthAPI(ctrl), logs.GetLoggerFromLevel(slog.LevelDebug))

		gomock.InOrder(
			store.EXPECT().Set(KeyAccessToken, "access-1").Return(nil),
			store.EXPECT().Set(KeyUserID, "user-alice").Return(fmt.Errorf("disk full")),
			store.EXPECT().Remove(KeyAccessToken).Return(nil),
		)

		err := manager.Store(aliceCredentials())
		req.Error(err)
	})

	t.Run("should write the whole set in one batch when the store supports it", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockBatchStore(ctrl)
		manager := NewManager(store, mocks.NewMockAuthAPI(ctrl), logs.GetLoggerFromLevel(slog.LevelDebug))

		next := aliceCredentials()
		next.RefreshToken = ""
		store.EXPECT().Set(gomock.Any(), gomock.Any()).Times(0)
		store.EXPECT().Apply(map[string]string{
			KeyAccessToken: "access-1",
			KeyUserID:      "user-alice",
			KeyEmail:       "alice@example.com",
			KeyUsername:    "alice",
		}, KeyRefreshToken).Return(nil)

		req.NoError(manager.Store(next))
	})
}

func TestManager_AutoLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("should verify once and never refresh with a valid token", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		req.NoError(manager.Store(aliceCredentials()))

		api.EXPECT().Verify(gomock.Any(), "access-1").Return(true, nil).Times(1)
		api.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

		creds, ok := manager.AutoLogin(ctx)
		req.True(ok)
		req.Equal(aliceCredentials(), creds)
	})

	t.Run("should refresh once after a rejected verification", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		req.NoError(manager.Store(aliceCredentials()))

		gomock.InOrder(
			api.EXPECT().Verify(gomock.Any(), "access-1").Return(false, nil).Times(1),
			api.EXPECT().Refresh(gomock.Any(), "refresh-1").
				Return(transport.RefreshResult{AccessToken: "access-2", UserID: "user-alice"}, nil).Times(1),
		)

		creds, ok := manager.AutoLogin(ctx)
		req.True(ok)
		req.Equal("access-2", creds.AccessToken)
		req.Equal("refresh-1", creds.RefreshToken)
		req.Equal(aliceCredentials().Identity, creds.Identity)

		stored, _ := manager.AccessToken()
		req.Equal("access-2", stored)
	})

	t.Run("should treat a verification network error as rejection", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		req.NoError(manager.Store(aliceCredentials()))

		api.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(false, errors.ErrTransport)
		api.EXPECT().Refresh(gomock.Any(), "refresh-1").Return(transport.RefreshResult{}, errors.ErrTransport)

		_, ok := manager.AutoLogin(ctx)
		req.False(ok)

		// Storage is untouched by the failed refresh
		creds, ok := manager.Credentials()
		req.True(ok)
		req.Equal(aliceCredentials(), creds)
	})

	t.Run("should not call the network without stored credentials", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		api.EXPECT().Verify(gomock.Any(), gomock.Any()).Times(0)
		api.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

		_, ok := manager.AutoLogin(ctx)
		req.False(ok)
	})
}

func TestManager_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject a token issued for another user", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		req.NoError(manager.Store(aliceCredentials()))

		api.EXPECT().Refresh(gomock.Any(), "refresh-1").
			Return(transport.RefreshResult{AccessToken: "access-bob", UserID: "user-bob"}, nil)

		_, ok := manager.Refresh(ctx)
		req.False(ok)
		token, _ := manager.AccessToken()
		req.Equal("access-1", token)
	})

	t.Run("should skip the network without a refresh token", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		creds := aliceCredentials()
		creds.RefreshToken = ""
		req.NoError(manager.Store(creds))
		api.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

		_, ok := manager.Refresh(ctx)
		req.False(ok)
	})
}

func TestManager_RefreshFailureCause(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		result  transport.RefreshResult
		err     error
		wantErr error
	}{
		{name: "rejected refresh token", err: &transport.APIError{StatusCode: 401}, wantErr: errors.ErrAuthentication},
		{name: "server unavailable", err: &transport.APIError{StatusCode: 503}, wantErr: errors.ErrTransport},
		{name: "unclassified failure", err: context.DeadlineExceeded, wantErr: errors.ErrTransport},
		{name: "empty token", result: transport.RefreshResult{}, wantErr: errors.ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			manager, api, _ := newManager(t)
			req.NoError(manager.Store(aliceCredentials()))
			api.EXPECT().Refresh(gomock.Any(), "refresh-1").Return(tt.result, tt.err)

			_, err := manager.refresh(ctx)

			req.ErrorIs(err, tt.wantErr)
			token, _ := manager.AccessToken()
			req.Equal("access-1", token)
		})
	}
}

func TestManager_RefreshDuringLogout(t *testing.T) {
	req := require.New(t)
	manager, api, store := newManager(t)
	req.NoError(manager.Store(aliceCredentials()))

	var transitions []bool
	manager.OnChange(func(_ domain.Identity, authenticated bool) {
		transitions = append(transitions, authenticated)
	})

	// Given a refresh whose answer is held back
	inFlight := make(chan struct{})
	release := make(chan struct{})
	api.EXPECT().Refresh(gomock.Any(), "refresh-1").
		DoAndReturn(func(context.Context, string) (transport.RefreshResult, error) {
			close(inFlight)
			<-release
			return transport.RefreshResult{AccessToken: "access-2", UserID: "user-alice"}, nil
		})

	type outcome struct {
		creds domain.Credentials
		ok    bool
	}
	done := make(chan outcome, 1)
	go func() {
		creds, ok := manager.Refresh(context.Background())
		done <- outcome{creds, ok}
	}()

	// When the user logs out before the answer arrives
	<-inFlight
	manager.Logout()
	close(release)
	got := <-done

	// Then the answer is discarded and nothing is persisted
	req.False(got.ok)
	for _, key := range allKeys {
		_, ok, err := store.Get(key)
		req.NoError(err)
		req.False(ok, key)
	}
	req.Equal([]bool{false}, transitions)
}

func TestManager_Logout(t *testing.T) {
	req := require.New(t)
	manager, _, store := newManager(t)
	req.NoError(manager.Store(aliceCredentials()))

	var transitions []bool
	manager.OnChange(func(_ domain.Identity, authenticated bool) {
		transitions = append(transitions, authenticated)
	})

	manager.Logout()
	manager.Logout()

	_, ok := manager.Current()
	req.False(ok)
	for _, key := range allKeys {
		_, ok, err := store.Get(key)
		req.NoError(err)
		req.False(ok, key)
	}
	req.Equal([]bool{false, false}, transitions)
}

func TestManager_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("should store the credentials returned by the service", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		api.EXPECT().Login(gomock.Any(), "alice@example.com", "secret-pass").Return(aliceCredentials(), nil)

		creds, err := manager.Login(ctx, "alice@example.com", "secret-pass")
		req.NoError(err)
		req.Equal(aliceCredentials(), creds)
		req.True(manager.IsLoggedIn())
	})

	t.Run("should validate before calling the service", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		api.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := manager.Login(ctx, "not-an-email", "secret-pass")
		req.ErrorIs(err, errors.ErrInvalidRequest)
	})

	t.Run("should propagate a rejection", func(t *testing.T) {
		req := require.New(t)
		manager, api, _ := newManager(t)
		api.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Credentials{}, errors.ErrAuthentication)

		_, err := manager.Login(ctx, "alice@example.com", "wrong-pass")
		req.ErrorIs(err, errors.ErrAuthentication)
		req.False(manager.IsLoggedIn())
	})
}

func TestManager_Registration(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	manager, api, _ := newManager(t)

	api.EXPECT().Register(gomock.Any(), "alice@example.com", "alice", "long-password").Return(nil)
	api.EXPECT().ConfirmRegistration(gomock.Any(), "alice@example.com", "123456").Return(aliceCredentials(), nil)

	req.NoError(manager.Register(ctx, "alice@example.com", "alice", "long-password"))
	req.False(manager.IsLoggedIn())

	creds, err := manager.ConfirmRegistration(ctx, "alice@example.com", "123456")
	req.NoError(err)
	req.Equal(aliceCredentials(), creds)
	req.True(manager.IsLoggedIn())
}
