package capability

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

// hashFuncs maps a digest name to its constructor. Only the algorithms
// named in digestStrengthOrder are ever selected by StrongestDigest, but
// lookups here are total so a caller can validate a digest name on its
// own.
var hashFuncs = map[string]func() hash.Hash{
	"sha512": sha512.New,
	"sha384": sha512.New384,
	"sha256": sha256.New,
	"sha1":   sha1.New,
}

// xorSalts XORs two salts of equal length, as required by
// "HMAC(digest, password_material, server_salt ⊕ client_salt)" (§4.4).
func xorSalts(server, client []byte) ([]byte, error) {
	if len(server) != len(client) {
		return nil, fmt.Errorf("salt length mismatch: server %d client %d", len(server), len(client))
	}
	out := make([]byte, len(server))
	for i := range out {
		out[i] = server[i] ^ client[i]
	}
	return out, nil
}

// ComputeChallengeResponse computes HMAC(digest, passwordMaterial,
// serverSalt⊕clientSalt) (§4.4 step 3).
func ComputeChallengeResponse(digest string, passwordMaterial, serverSalt, clientSalt []byte) ([]byte, error) {
	newHash, ok := hashFuncs[digest]
	if !ok {
		return nil, fmt.Errorf("unsupported digest %q", digest)
	}
	combined, err := xorSalts(serverSalt, clientSalt)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newHash, passwordMaterial)
	mac.Write(combined)
	return mac.Sum(nil), nil
}

// VerifyChallengeResponse recomputes the expected response and compares
// it to the one received, in constant time.
func VerifyChallengeResponse(digest string, passwordMaterial, serverSalt, clientSalt, response []byte) (bool, error) {
	expected, err := ComputeChallengeResponse(digest, passwordMaterial, serverSalt, clientSalt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(expected, response) == 1, nil
}

// AuthModule is one link in the auth chain of §4.4 step 3: "multiple
// authentication modules may be chained; each emits its own challenge
// until all succeed or one rejects."
type AuthModule interface {
	Name() string
	Digests() []string
	PasswordMaterial(identity string) ([]byte, error)
}

// SharedSecretModule is an AuthModule backed by a single pre-shared
// secret, the simplest case named in §4.4 (a password/PSK check with no
// external identity lookup).
type SharedSecretModule struct {
	ModuleName string
	Secret     string
}

func (m SharedSecretModule) Name() string        { return m.ModuleName }
func (m SharedSecretModule) Digests() []string    { return digestStrengthOrder }
func (m SharedSecretModule) PasswordMaterial(string) ([]byte, error) {
	return []byte(m.Secret), nil
}

// Exchange sends a Challenge to the client and returns its response, the
// client salt, and the digest it used. Implemented by the caller, which
// owns the actual endpoint.
type Exchange func(ctx context.Context, ch Challenge) (response, clientSalt []byte, digest string, err error)

// Chain runs each AuthModule's challenge/response round in order,
// bounded to maxTries attempts per module, via github.com/avast/retry-go/v4.
// It returns ErrAuthFailed wrapping the first module that never produces
// a valid response.
type Chain struct {
	Modules []AuthModule
	Logger  zerolog.Logger
}

// Authenticate drives the chain for one connecting identity.
func (c Chain) Authenticate(ctx context.Context, identity string, serverSalt []byte, maxTries int, exchange Exchange) error {
	for _, mod := range c.Modules {
		passwordMaterial, err := mod.PasswordMaterial(identity)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrAuthFailed, mod.Name(), err)
		}

		attempt := 0
		err = retry.Do(
			func() error {
				attempt++
				ch := Challenge{Salt: serverSalt, DigestsOffered: mod.Digests()}
				response, clientSalt, digest, err := exchange(ctx, ch)
				if err != nil {
					return err
				}
				ok, err := VerifyChallengeResponse(digest, passwordMaterial, serverSalt, clientSalt, response)
				if err != nil {
					return retry.Unrecoverable(err)
				}
				if !ok {
					c.Logger.Warn().Str("module", mod.Name()).Int("attempt", attempt).Msg("challenge response rejected")
					return ErrChallengeRejected
				}
				return nil
			},
			retry.Attempts(uint(maxTries)),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return fmt.Errorf("%w: module %s: %v", ErrAuthFailed, mod.Name(), err)
		}
	}
	return nil
}
