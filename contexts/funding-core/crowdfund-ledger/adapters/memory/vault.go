package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// custodyAccount is the vault-internal account holding funds custodied
// by the ledger between donation and settlement.
const custodyAccount = "__ledger_custody__"

var ErrInsufficientBalance = errors.New("insufficient balance")

// Vault is an in-process fungible-asset vault standing in for the
// external value-transfer medium until a settlement rail is wired. It
// keeps per-asset, per-account balances; Pull and Push move the funding
// asset in and out of ledger custody and fail like a real rail would.
type Vault struct {
	mu           sync.Mutex
	fundingAsset string
	balances     map[string]map[string]int64
}

func NewVault(fundingAsset string) *Vault {
	if strings.TrimSpace(fundingAsset) == "" {
		fundingAsset = "FUND"
	}
	return &Vault{
		fundingAsset: fundingAsset,
		balances:     map[string]map[string]int64{},
	}
}

// Mint credits an account out of thin air. Test and dev seeding only.
func (v *Vault) Mint(asset, account string, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.credit(asset, account, amount)
}

// MintFunding credits the funding asset.
func (v *Vault) MintFunding(account string, amount int64) {
	v.Mint(v.fundingAsset, account, amount)
}

func (v *Vault) Balance(asset, account string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.balances[asset][account]
}

// FundingBalance is the account's balance of the funding asset.
func (v *Vault) FundingBalance(account string) int64 {
	return v.Balance(v.fundingAsset, account)
}

// CustodyBalance is the total funding-asset amount the ledger holds.
func (v *Vault) CustodyBalance() int64 {
	return v.Balance(v.fundingAsset, custodyAccount)
}

func (v *Vault) Pull(_ context.Context, from string, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[v.fundingAsset][from] < amount {
		return ErrInsufficientBalance
	}
	v.balances[v.fundingAsset][from] -= amount
	v.credit(v.fundingAsset, custodyAccount, amount)
	return nil
}

func (v *Vault) Push(_ context.Context, to string, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[v.fundingAsset][custodyAccount] < amount {
		return ErrInsufficientBalance
	}
	v.balances[v.fundingAsset][custodyAccount] -= amount
	v.credit(v.fundingAsset, to, amount)
	return nil
}

func (v *Vault) RescueAsset(_ context.Context, asset string, to string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	amount := v.balances[asset][custodyAccount]
	if amount == 0 {
		return 0, nil
	}
	v.balances[asset][custodyAccount] = 0
	v.credit(asset, to, amount)
	return amount, nil
}

func (v *Vault) credit(asset, account string, amount int64) {
	accounts, exists := v.balances[asset]
	if !exists {
		accounts = make(map[string]int64)
		v.balances[asset] = accounts
	}
	accounts[account] += amount
}
