// Package subscribers is a small mailing-list API built on the middleware
// pipeline: sign up, look up, list, export and unsubscribe.
package subscribers

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive = "active"

	keyPrefix = "SUBSCRIBER#"
)

// Topics a subscriber may follow.
var Topics = []string{"news", "releases", "security", "events"}

// Subscriber is one mailing-list entry.
type Subscriber struct {
	PK         string     `dynamodbav:"PK" json:"-"`
	ID         string     `dynamodbav:"id" json:"id"`
	Email      string     `dynamodbav:"email" json:"email"`
	Name       string     `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Topics     []string   `dynamodbav:"topics,omitempty" json:"topics"`
	Status     string     `dynamodbav:"status" json:"status"`
	CreatedAt  time.Time  `dynamodbav:"createdAt" json:"createdAt"`
	WelcomedAt *time.Time `dynamodbav:"welcomedAt,omitempty" json:"welcomedAt,omitempty"`
}

// CreateInput is the validated body of a sign-up request.
type CreateInput struct {
	Email  string
	Name   string
	Topics []string
}

// SubscriberID derives a stable id from the normalized email, so a second
// sign-up with the same address collides on the key.
func SubscriberID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(strings.TrimSpace(email)))).String()
}

func partitionKey(id string) string {
	return keyPrefix + id
}
