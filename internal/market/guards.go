package market

import (
	"fmt"
	"slices"

	"github.com/starford/pledge/internal/keys"
	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
)

// Signers are the parties that authorized a request.
type Signers []string

// Has reports whether addr signed.
func (s Signers) Has(addr string) bool {
	return addr != "" && slices.Contains(s, addr)
}

// First returns the first signer or "".
func (s Signers) First() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func requireSigners(s Signers, parties ...string) error {
	for _, p := range parties {
		if !s.Has(p) {
			return fmt.Errorf("%w: %s", ErrMissingSignature, p)
		}
	}
	return nil
}

func requireLoanStatus(l *models.Loan, want models.LoanStatus) error {
	if l.Status == want {
		return nil
	}
	if want == models.LoanInAuction {
		return fmt.Errorf("%w: %s is %s", ErrLoanNotInAuction, l.ID, l.Status)
	}
	return fmt.Errorf("%w: %s is %s", ErrLoanNotActive, l.ID, l.Status)
}

// loanVault loads a loan's vault and checks the binding both ways.
func loanVault(tx store.Tx, l *models.Loan) (*models.Vault, error) {
	v, err := tx.Vault(keys.Vault(l.ID))
	if err != nil {
		return nil, err
	}
	if v.LoanID != l.ID || v.CollateralAsset != l.CollateralAsset {
		return nil, fmt.Errorf("%w: vault %s", ErrVaultMismatch, v.ID)
	}
	return v, nil
}
