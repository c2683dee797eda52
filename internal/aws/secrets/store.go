// Package secrets reads and writes Secrets Manager secrets through a small
// in-process cache.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"go.uber.org/zap"
)

// DefaultTTL is how long a fetched secret is served from memory.
const DefaultTTL = 5 * time.Minute

// ErrNoValue is returned for secrets that carry only a binary value.
var ErrNoValue = errors.New("secret has no string value")

// API is the subset of the Secrets Manager client the store uses.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

type entry struct {
	value   string
	expires time.Time
}

// Store caches secret strings for ttl.
type Store struct {
	client API
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]entry
}

// NewStore creates a store. A non-positive ttl uses DefaultTTL.
func NewStore(client API, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]entry),
	}
}

// Get returns the string value of the secret name.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	e, ok := s.cache[name]
	s.mu.RUnlock()
	if ok && s.now().Before(e.expires) {
		return e.value, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("%w: %s", ErrNoValue, name)
	}

	value := aws.ToString(out.SecretString)
	s.mu.Lock()
	s.cache[name] = entry{value: value, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Debug("Fetched secret", zap.String("name", name))
	return value, nil
}

// GetJSON decodes a JSON secret into v.
func (s *Store) GetJSON(ctx context.Context, name string, v any) error {
	raw, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode secret %s: %w", name, err)
	}
	return nil
}

// Put stores a new version of the secret and refreshes the cache.
func (s *Store) Put(ctx context.Context, name, value string) error {
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:      aws.String(name),
		SecretString:  aws.String(value),
		VersionStages: []string{"AWSCURRENT"},
	})
	if err != nil {
		return fmt.Errorf("failed to put secret %s: %w", name, err)
	}

	s.mu.Lock()
	s.cache[name] = entry{value: value, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

// Invalidate drops name from the cache.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

// IsNotFound reports whether err means the secret does not exist.
func IsNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}
