package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrInvalidCursor is returned for cursors this package did not produce.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// GetItem loads the item at key into a T. ok is false when it does not exist.
func GetItem[T any](ctx context.Context, s *Store, key Item) (v T, ok bool, err error) {
	item, err := s.Get(ctx, key)
	if err != nil || item == nil {
		return v, false, err
	}
	if err := attributevalue.UnmarshalMap(item, &v); err != nil {
		return v, false, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return v, true, nil
}

// PutItem marshals v with its dynamodbav tags and writes it.
func PutItem(ctx context.Context, s *Store, v any, opts ...PutOption) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	return s.Put(ctx, item, opts...)
}

// UnmarshalPage decodes every item of p.
func UnmarshalPage[T any](p Page) ([]T, error) {
	out := make([]T, 0, len(p.Items))
	if err := attributevalue.UnmarshalListOfMaps(p.Items, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	return out, nil
}

// QueryPage runs a query starting at cursor and returns decoded items and
// the cursor of the next page, empty on the last one.
func QueryPage[T any](ctx context.Context, s *Store, in QueryInput, cursor string) ([]T, string, error) {
	start, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	in.StartKey = start

	page, err := s.Query(ctx, in)
	if err != nil {
		return nil, "", err
	}
	return decodePage[T](page)
}

// ScanPage is QueryPage for scans.
func ScanPage[T any](ctx context.Context, s *Store, in ScanInput, cursor string) ([]T, string, error) {
	start, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	in.StartKey = start

	page, err := s.Scan(ctx, in)
	if err != nil {
		return nil, "", err
	}
	return decodePage[T](page)
}

func decodePage[T any](page Page) ([]T, string, error) {
	items, err := UnmarshalPage[T](page)
	if err != nil {
		return nil, "", err
	}
	next, err := EncodeCursor(page.LastKey)
	if err != nil {
		return nil, "", err
	}
	return items, next, nil
}

// EncodeCursor turns a LastEvaluatedKey into an opaque URL-safe token. Only
// string key attributes are supported. A nil key encodes as "".
func EncodeCursor(key Item) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	plain := make(map[string]string, len(key))
	for name, av := range key {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("cursor key attribute %q is not a string", name)
		}
		plain[name] = s.Value
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor reverses EncodeCursor. "" decodes to a nil key.
func DecodeCursor(cursor string) (Item, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var plain map[string]string
	if err := json.Unmarshal(data, &plain); err != nil || len(plain) == 0 {
		return nil, ErrInvalidCursor
	}
	key := make(Item, len(plain))
	for name, v := range plain {
		key[name] = &types.AttributeValueMemberS{Value: v}
	}
	return key, nil
}
