// Package totp implements the Time-based One-Time Password algorithm (RFC 6238)
// together with the helpers the MFA layer needs around it: secret key
// generation, otpauth:// provisioning URIs for authenticator apps, AES-256-GCM
// encryption of secrets at rest with PBKDF2 key derivation from a master key,
// and single-use backup codes hashed with bcrypt.
//
// Keeping the TOTP math in-house removes a dependency for a few dozen lines of
// well-specified code; everything here is exercised against RFC 4226/6238 test
// semantics in the package tests.
//
// The minimal enrollment flow:
//
//	secret, _ := totp.GenerateSecret()
//	key := totp.DeriveKey([]byte(masterKey))
//	enc, _ := totp.Encrypt(secret, key)   // persist enc
//	uri, _ := totp.ProvisioningURI(secret, "123456789", "InfraBot")
//
// and later, verification of a submitted code:
//
//	ok, err := totp.Verify(secret, "123456")
//
// Verify accepts the previous, current, and next 30-second step to tolerate
// clock drift between the server and the authenticator device.
package totp
