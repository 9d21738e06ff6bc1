package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainAction prefixes every action digest. The version suffix allows a
// future algorithm migration.
const DomainAction = "quorum/action/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ActionDigest computes the content address of a pending action.
// The same (domain, round, payload) always yields the same digest, so two
// submits of identical parameters remain distinguishable by round.
func ActionDigest(d Domain, round int64, payload map[string]any) (string, error) {
	obj := map[string]any{
		"domain":  string(d),
		"round":   round,
		"payload": payload,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("action digest: %w", err)
	}
	return hashWithDomain(DomainAction, canonical), nil
}

// RebalanceDigest is ActionDigest for a rebalance instruction.
func RebalanceDigest(round int64, p RebalanceParams) (string, error) {
	return ActionDigest(DomainRebalance, round, p.canonicalFields())
}

// CandidateDigest is ActionDigest for a role candidate.
func CandidateDigest(d Domain, round int64, candidate Identity) (string, error) {
	return ActionDigest(d, round, map[string]any{"candidate": string(candidate)})
}
