package candidate

import (
	"context"

	"tickerlink/pkg/errors"
	"tickerlink/pkg/logger"
)

// Service encapsulates the operator confirmation workflow.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService constructs a candidate service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, log: logger.Get()}
}

// Confirm records an operator accepting a candidate. Confirmed candidates
// are locked against automatic runs.
func (s *Service) Confirm(ctx context.Context, candidateID int64, operator string) error {
	if candidateID <= 0 || operator == "" {
		return errors.ErrInvalidInput
	}

	if err := s.repo.UpdateConfirmation(ctx, candidateID, ConfirmationConfirmed, &operator); err != nil {
		return errors.Wrap(err, "confirm candidate")
	}

	s.log.Infow("Candidate confirmed", "candidate_id", candidateID, "operator", operator)
	return nil
}

// Reject records an operator rejecting a candidate.
func (s *Service) Reject(ctx context.Context, candidateID int64, operator string) error {
	if candidateID <= 0 || operator == "" {
		return errors.ErrInvalidInput
	}

	if err := s.repo.UpdateConfirmation(ctx, candidateID, ConfirmationRejected, &operator); err != nil {
		return errors.Wrap(err, "reject candidate")
	}

	s.log.Infow("Candidate rejected", "candidate_id", candidateID, "operator", operator)
	return nil
}

// Reopen returns a decided candidate to the pending state.
func (s *Service) Reopen(ctx context.Context, candidateID int64) error {
	if candidateID <= 0 {
		return errors.ErrInvalidInput
	}

	if err := s.repo.UpdateConfirmation(ctx, candidateID, ConfirmationPending, nil); err != nil {
		return errors.Wrap(err, "reopen candidate")
	}
	return nil
}

// ListPending returns candidates awaiting operator review, best score first.
func (s *Service) ListPending(ctx context.Context, filter PendingFilter) ([]*PendingCandidate, error) {
	pending, err := s.repo.FetchPending(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "list pending candidates")
	}
	return pending, nil
}
