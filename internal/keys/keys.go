// Package keys derives deterministic record identifiers from seed tuples.
package keys

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Derive returns the identifier for the record addressed by seeds.
// Each seed is length-prefixed so ("ab","c") and ("a","bc") never collide.
func Derive(seeds ...string) string {
	h := sha256.New()
	var n [4]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Loan returns the loan identifier for a borrower and collateral asset.
func Loan(borrower, asset string) string { return Derive("loan", borrower, asset) }

// Vault returns the vault identifier for a loan.
func Vault(loanID string) string { return Derive("vault", loanID) }

// Auction returns the auction identifier for a loan.
func Auction(loanID string) string { return Derive("auction", loanID) }
