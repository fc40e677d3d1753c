package identity

import (
	"context"
	"fmt"
	"time"

	"task-calendar/backend/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/gofrs/uuid"
	"google.golang.org/api/option"
)

// firebaseUserNamespace maps Firebase UIDs onto stable user ids.
var firebaseUserNamespace = uuid.Must(uuid.FromString("6f1c2a57-1d39-4a4e-9a53-4b0f7f3c9e21"))

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type FirebaseVerifier struct {
	client idTokenVerifier
}

func NewFirebaseVerifier(ctx context.Context, credentialsPath string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Session, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email, _ := token.Claims["email"].(string)
	metadata := map[string]interface{}{}
	if name, ok := token.Claims["name"].(string); ok && name != "" {
		metadata["full_name"] = name
	}

	return &Session{
		AccessToken: idToken,
		ExpiresAt:   time.Unix(token.Expires, 0),
		User: models.User{
			ID:       FirebaseUserID(token.UID),
			Email:    email,
			Metadata: metadata,
		},
	}, nil
}

func FirebaseUserID(uid string) uuid.UUID {
	return uuid.NewV5(firebaseUserNamespace, uid)
}
