// README: Firebase Admin SDK token verifier for the moderator HTTP API.
package infra

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Claim names set on moderator accounts through custom claims.
const (
	ClaimRole       = "role"
	ClaimTelegramID = "tg_id"
)

// FirebaseToken is a verified ID token.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// Role returns the role claim or "".
func (t *FirebaseToken) Role() string {
	s, _ := t.Claims[ClaimRole].(string)
	return s
}

// TelegramID returns the tg_id claim. Custom claims arrive as JSON numbers or strings.
func (t *FirebaseToken) TelegramID() (int64, bool) {
	switch v := t.Claims[ClaimTelegramID].(type) {
	case float64:
		return int64(v), v != 0
	case int64:
		return v, v != 0
	case int:
		return int64(v), v != 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n != 0
	}
	return 0, false
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier builds a verifier for projectID. An empty credentialsFile falls back to
// application-default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}
