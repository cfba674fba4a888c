package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
	apperrors "github.com/studiare/tuition-billing/pkg/errors"
)

type walletReader interface {
	FindWalletByStudent(ctx context.Context, studentID string) (*models.StudentWallet, error)
}

// WalletService exposes read access to student prepaid balances. Credits
// only happen through confirmed top-up webhooks.
type WalletService struct {
	wallets  walletReader
	validate *validator.Validate
	logger   *zap.Logger
}

// NewWalletService wires the wallet read path.
func NewWalletService(wallets walletReader, logger *zap.Logger) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletService{
		wallets:  wallets,
		validate: validator.New(),
		logger:   logger,
	}
}

// GetBalance returns the student's wallet. A student without a wallet row
// has a zero balance, not an error.
func (s *WalletService) GetBalance(ctx context.Context, studentID string) (*models.StudentWallet, error) {
	if err := s.validate.Var(studentID, "required,uuid4"); err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "student id must be a uuid")
	}
	wallet, err := s.wallets.FindWalletByStudent(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.StudentWallet{StudentID: studentID, BalanceCents: 0}, nil
		}
		return nil, fmt.Errorf("fetch wallet for student %s: %w", studentID, err)
	}
	return wallet, nil
}
