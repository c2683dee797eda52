package subscribers

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"serverless-kit/internal/aws/storage"
	apperrors "serverless-kit/pkg/errors"
)

// Repository persists subscribers in a single-table layout keyed by PK.
type Repository struct {
	store *storage.Store
}

func NewRepository(store *storage.Store) *Repository {
	return &Repository{store: store}
}

// Create stores s unless a subscriber with the same id exists.
func (r *Repository) Create(ctx context.Context, s *Subscriber) error {
	s.PK = partitionKey(s.ID)
	err := storage.PutItem(ctx, r.store, s, storage.IfNotExists("PK"))
	if isConditionFailed(err) {
		return apperrors.NewConflictError("Subscriber already exists").
			WithDetails(map[string]any{"email": s.Email}).
			WithCause(err)
	}
	return err
}

// Get loads the subscriber with id.
func (r *Repository) Get(ctx context.Context, id string) (*Subscriber, error) {
	s, ok, err := storage.GetItem[Subscriber](ctx, r.store, storage.Key("PK", partitionKey(id)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewNotFoundError("Subscriber")
	}
	return &s, nil
}

// List returns up to limit subscribers after cursor, and the next cursor.
func (r *Repository) List(ctx context.Context, limit int, cursor string) ([]Subscriber, string, error) {
	filter := expression.BeginsWith(expression.Name("PK"), keyPrefix)
	items, next, err := storage.ScanPage[Subscriber](ctx, r.store, storage.ScanInput{
		Filter: &filter,
		Limit:  int32(limit),
	}, cursor)
	if errors.Is(err, storage.ErrInvalidCursor) {
		return nil, "", apperrors.NewValidationError("Invalid pagination cursor",
			map[string]any{"errors": []string{"cursor is not valid"}})
	}
	return items, next, err
}

// MarkWelcomed records when the welcome message went out. It fails with
// NotFound when the subscriber was deleted meanwhile.
func (r *Repository) MarkWelcomed(ctx context.Context, id string, at time.Time) error {
	cond := expression.AttributeExists(expression.Name("PK"))
	_, err := r.store.Update(ctx, storage.Key("PK", partitionKey(id)),
		expression.Set(expression.Name("welcomedAt"), expression.Value(at.UTC().Format(time.RFC3339Nano))),
		&cond)
	if isConditionFailed(err) {
		return apperrors.NewNotFoundError("Subscriber").WithCause(err)
	}
	return err
}

// Delete removes the subscriber with id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	old, err := r.store.Delete(ctx, storage.Key("PK", partitionKey(id)))
	if err != nil {
		return err
	}
	if old == nil {
		return apperrors.NewNotFoundError("Subscriber")
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
