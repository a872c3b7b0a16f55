package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/payments"
)

var (
	ErrInvalidPlan  = errors.New("invalid plan")
	ErrHashRequired = errors.New("transaction_hash is required")
	ErrUserNotFound = errors.New("user not found")
	// ErrVerification means the gateway could not confirm the transaction at
	// all, as opposed to confirming it unpaid.
	ErrVerification = errors.New("could not verify payment")
)

// NotConfirmedError reports a transaction the gateway knows about but has not
// settled. RawStatus carries the gateway's own wording for the frontend.
type NotConfirmedError struct {
	RawStatus string
}

func (e *NotConfirmedError) Error() string {
	return fmt.Sprintf("payment not confirmed (status %q)", e.RawStatus)
}

// NormalizeStatus folds the gateway's mixed Portuguese/English status strings
// into paid, pending, failed or unknown.
func NormalizeStatus(s string) string {
	switch strings.ToLower(s) {
	case "paid", "pago":
		return "paid"
	case "pending", "pendente", "awaiting", "waiting_payment":
		return "pending"
	case "canceled", "cancelled", "refunded", "failed":
		return "failed"
	default:
		return "unknown"
	}
}

// PaymentVerifier checks a transaction against the gateway.
type PaymentVerifier interface {
	TransactionStatus(ctx context.Context, hash string) (*payments.Transaction, error)
}

// UserStore is the slice of user persistence activation needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ApplyPlan(ctx context.Context, id primitive.ObjectID, plan models.Plan, paidAt, expiresAt time.Time, transactionHash, externalID string) (*models.User, error)
}

// planDuration is the window granted per confirmed payment. A new payment
// resets the window from the activation instant; it never stacks onto time
// left over.
const planDuration = 30 * 24 * time.Hour

// Service applies confirmed payments to user plans.
type Service struct {
	users    UserStore
	verifier PaymentVerifier
	now      func() time.Time
}

func NewService(users UserStore, verifier PaymentVerifier) *Service {
	return &Service{users: users, verifier: verifier, now: time.Now}
}

// Activation is the outcome of an activation request.
type Activation struct {
	Plan           models.Plan `json:"plan"`
	PlanPaidAt     *time.Time  `json:"planPaidAt"`
	PlanExpiresAt  *time.Time  `json:"planExpiresAt"`
	AlreadyApplied bool        `json:"alreadyApplied,omitempty"`
}

// Activate verifies the transaction server-side and grants the plan for 30
// days. Replaying the same transaction hash is a no-op that reports the
// current state.
func (s *Service) Activate(ctx context.Context, userID primitive.ObjectID, plan models.Plan, transactionHash, externalID string) (*Activation, error) {
	if plan != models.PlanClient && plan != models.PlanEmpresarial {
		return nil, ErrInvalidPlan
	}
	if transactionHash == "" {
		return nil, ErrHashRequired
	}

	tx, err := s.verifier.TransactionStatus(ctx, transactionHash)
	if err != nil {
		return nil, ErrVerification
	}
	if NormalizeStatus(tx.Status) != "paid" {
		return nil, &NotConfirmedError{RawStatus: tx.Status}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if user.PlanLastTransactionHash != "" && user.PlanLastTransactionHash == transactionHash {
		return &Activation{
			Plan:           user.Plan,
			PlanPaidAt:     user.PlanPaidAt,
			PlanExpiresAt:  user.PlanExpiresAt,
			AlreadyApplied: true,
		}, nil
	}

	now := s.now().UTC()
	expiresAt := now.Add(planDuration)
	updated, err := s.users.ApplyPlan(ctx, user.ID, plan, now, expiresAt, transactionHash, externalID)
	if err != nil {
		return nil, err
	}
	return &Activation{
		Plan:          updated.Plan,
		PlanPaidAt:    updated.PlanPaidAt,
		PlanExpiresAt: updated.PlanExpiresAt,
	}, nil
}
