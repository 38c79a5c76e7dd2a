package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// idTokenVerifier is the part of the Firebase auth client we depend on.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier accepts Firebase ID tokens so clients signed in through
// Firebase Authentication can call the API directly.
type FirebaseVerifier struct {
	client idTokenVerifier
}

// NewFirebaseVerifier initialises a Firebase app from a service account file.
func NewFirebaseVerifier(ctx context.Context, credentialsFile string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (f *FirebaseVerifier) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	tok, err := f.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	email, _ := tok.Claims["email"].(string)
	if email == "" {
		return nil, ErrInvalidToken
	}
	return &Principal{
		Subject:   tok.UID,
		Email:     strings.ToLower(email),
		Provider:  ProviderFirebase,
		IssuedAt:  time.Unix(tok.IssuedAt, 0),
		ExpiresAt: time.Unix(tok.Expires, 0),
	}, nil
}
