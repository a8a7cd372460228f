package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sydsec/gatehouse/internal/auth/notify"
	"github.com/sydsec/gatehouse/internal/auth/store"
	"github.com/sydsec/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/sydsec/gatehouse/pkg/jwtx"
)

type testEnv struct {
	Store       store.Store
	Tokens      *TokenService
	Credentials *CredentialService
	Push        *PushService
	Hub         *notify.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "gatehouse-test")
	require.NoError(t, err)

	tokens := &TokenService{Codec: codec}
	hub := notify.NewHub()

	return &testEnv{
		Store:       st,
		Tokens:      tokens,
		Credentials: &CredentialService{Store: st, Tokens: tokens, Issuer: "gatehouse-test"},
		Push:        &PushService{Store: st, Hub: hub, Tokens: tokens},
		Hub:         hub,
	}
}

func (e *testEnv) signup(t *testing.T, email string, withTOTP bool) SignupResult {
	t.Helper()

	res, err := e.Credentials.Signup(context.Background(), SignupRequest{
		Email:      email,
		FirstName:  "Grace",
		LastName:   "Hopper",
		Password:   "correct horse battery staple",
		EnableTOTP: withTOTP,
	})
	require.NoError(t, err)
	return res
}
