package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveUserID computes the deterministic, role-scoped user id for a
// (phone, userType) pair, letting one phone number hold distinct
// customer/driver/admin identities (glossary: "role-based userId").
//
// This is deliberately built on stdlib crypto/sha256 rather than a
// third-party hashing library: the invariant requires one exact,
// auditable transform that stays byte-for-byte stable forever across Go
// versions and dependency upgrades, which is the one case where pulling
// in a library buys nothing but an upgrade-risk surface.
func DeriveUserID(phone string, userType IdentityRole) string {
	sum := sha256.Sum256([]byte(string(userType) + "|" + phone))
	return string(userType) + "_" + hex.EncodeToString(sum[:])[:24]
}
