package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/require"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/pkg/idx"
)

func newWebAuthnService(t *testing.T, env *testEnv) *WebAuthnService {
	t.Helper()

	rp, err := webauthn.New(&webauthn.Config{
		RPID:          "localhost",
		RPDisplayName: "gatehouse-test",
		RPOrigins:     []string{"http://localhost"},
	})
	require.NoError(t, err)

	return &WebAuthnService{
		Store:      env.Store,
		Challenges: env.Store.Challenges(),
		RP:         rp,
		Tokens:     env.Tokens,
	}
}

func TestStartRegistrationStoresChallengeByEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	wa := newWebAuthnService(t, env)
	ctx := context.Background()

	options, err := wa.StartRegistration(ctx, "grace@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, options.Response.Challenge)

	stored, err := env.Store.Challenges().Get(ctx, "grace@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, stored.Payload)
	require.WithinDuration(t, time.Now().Add(domain.ChallengeTTL), stored.ExpiresAt, 2*time.Second)
}

func TestStartRegistrationUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	wa := newWebAuthnService(t, env)

	_, err := wa.StartRegistration(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStartRegistrationSupersedesPriorCeremony(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	wa := newWebAuthnService(t, env)
	ctx := context.Background()

	_, err := wa.StartRegistration(ctx, "grace@example.com")
	require.NoError(t, err)
	first, err := env.Store.Challenges().Get(ctx, "grace@example.com")
	require.NoError(t, err)

	_, err = wa.StartRegistration(ctx, "grace@example.com")
	require.NoError(t, err)
	second, err := env.Store.Challenges().Get(ctx, "grace@example.com")
	require.NoError(t, err)

	require.NotEqual(t, first.Payload, second.Payload)
}

func TestFinishRegistrationWithoutCeremony(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	wa := newWebAuthnService(t, env)

	_, err := wa.FinishRegistration(context.Background(), "grace@example.com", &protocol.ParsedCredentialCreationData{})
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestFinishRegistrationExpiredCeremony(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	wa := newWebAuthnService(t, env)
	ctx := context.Background()

	require.NoError(t, env.Store.Challenges().Put(ctx, domain.Challenge{
		Key:       "grace@example.com",
		Payload:   []byte("{}"),
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	_, err := wa.FinishRegistration(ctx, "grace@example.com", &protocol.ParsedCredentialCreationData{})
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestStartAssertionKeysChallengeByItsOwnValue(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	wa := newWebAuthnService(t, env)
	ctx := context.Background()

	// Scoped assertions need at least one registered credential.
	res, err := env.Credentials.GetAccount(ctx, "grace@example.com")
	require.NoError(t, err)
	require.NoError(t, env.Store.Credentials().Create(ctx, domain.Credential{
		ID: idx.New(), AccountID: res.ID,
		CredentialID: []byte("cred-1"), PublicKey: []byte{1, 2, 3},
		CreatedAt: time.Now(),
	}))

	options, err := wa.StartAssertion(ctx, "grace@example.com")
	require.NoError(t, err)

	key := options.Response.Challenge.String()
	stored, err := env.Store.Challenges().Get(ctx, key)
	require.NoError(t, err)
	require.NotEmpty(t, stored.Payload)
}

func TestStartAssertionDiscoverable(t *testing.T) {
	env := newTestEnv(t)
	wa := newWebAuthnService(t, env)
	ctx := context.Background()

	options, err := wa.StartAssertion(ctx, "")
	require.NoError(t, err)

	_, err = env.Store.Challenges().Get(ctx, options.Response.Challenge.String())
	require.NoError(t, err)
}

func TestListAndDeleteCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "grace@example.com", false)
	wa := newWebAuthnService(t, env)
	ctx := context.Background()

	account, err := env.Credentials.GetAccount(ctx, "grace@example.com")
	require.NoError(t, err)

	cred := domain.Credential{
		ID: idx.New(), AccountID: account.ID,
		CredentialID: []byte("cred-1"), PublicKey: []byte{1, 2, 3},
		CreatedAt: time.Now(),
	}
	require.NoError(t, env.Store.Credentials().Create(ctx, cred))

	list, err := wa.ListCredentials(ctx, "grace@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, wa.DeleteCredential(ctx, "grace@example.com", cred.ID))
	require.ErrorIs(t, wa.DeleteCredential(ctx, "grace@example.com", cred.ID), ErrCredentialNotFound)

	list, err = wa.ListCredentials(ctx, "grace@example.com")
	require.NoError(t, err)
	require.Empty(t, list)
}
