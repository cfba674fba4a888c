package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiare/tuition-billing/internal/models"
)

// mockWalletReader matches the repository contract: a missing row is
// sql.ErrNoRows, never (nil, nil).
type mockWalletReader struct {
	wallets map[string]models.StudentWallet
	err     error
}

func (m *mockWalletReader) FindWalletByStudent(ctx context.Context, studentID string) (*models.StudentWallet, error) {
	if m.err != nil {
		return nil, m.err
	}
	if w, ok := m.wallets[studentID]; ok {
		return &w, nil
	}
	return nil, sql.ErrNoRows
}

func TestWalletGetBalance(t *testing.T) {
	studentID := "a9f3a2c4-7c1e-4f7d-9b56-2f1d2f8a9c01"
	svc := NewWalletService(&mockWalletReader{wallets: map[string]models.StudentWallet{
		studentID: {ID: "wallet-1", StudentID: studentID, BalanceCents: 12500},
	}}, nil)

	wallet, err := svc.GetBalance(context.Background(), studentID)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), wallet.BalanceCents)
}

func TestWalletGetBalanceMissingWalletReadsZero(t *testing.T) {
	studentID := "a9f3a2c4-7c1e-4f7d-9b56-2f1d2f8a9c01"
	svc := NewWalletService(&mockWalletReader{}, nil)

	wallet, err := svc.GetBalance(context.Background(), studentID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.BalanceCents)
	assert.Equal(t, studentID, wallet.StudentID)
}

func TestWalletGetBalanceRejectsMalformedID(t *testing.T) {
	svc := NewWalletService(&mockWalletReader{}, nil)
	_, err := svc.GetBalance(context.Background(), "not-a-uuid")
	require.Error(t, err)
}

func TestWalletGetBalancePropagatesReadErrors(t *testing.T) {
	studentID := "a9f3a2c4-7c1e-4f7d-9b56-2f1d2f8a9c01"
	readErr := errors.New("connection reset")
	svc := NewWalletService(&mockWalletReader{err: readErr}, nil)

	_, err := svc.GetBalance(context.Background(), studentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)
}
