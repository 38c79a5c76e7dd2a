package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
	"github.com/wardwatch/wardwatch/internal/platform/blobstore"
	"github.com/wardwatch/wardwatch/internal/platform/notification"
)

// Verifier reports whether an email recently passed OTP verification.
type Verifier interface {
	ConsumeVerified(ctx context.Context, email string) (bool, error)
}

// Mailer sends one templated email.
type Mailer interface {
	SendEmail(ctx context.Context, templateID string, data map[string]string, to, replyTo string) (*notification.ChannelResult, error)
}

// ResetTokenTTL bounds how long a password reset link works.
const ResetTokenTTL = 30 * time.Minute

type Service struct {
	users       Repository
	verifier    Verifier
	tokens      *auth.TokenIssuer
	sessions    *auth.Sessions
	revocations *auth.TokenRevocationStore
	logger      zerolog.Logger

	mailer   Mailer
	resetURL string

	images  ImageRepository
	blobs   blobstore.Store
	blobTTL time.Duration
}

func NewService(users Repository, verifier Verifier, tokens *auth.TokenIssuer, sessions *auth.Sessions, revocations *auth.TokenRevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		verifier:    verifier,
		tokens:      tokens,
		sessions:    sessions,
		revocations: revocations,
		logger:      logger,
	}
}

// WithPasswordReset enables reset emails pointing at resetURL.
func (s *Service) WithPasswordReset(mailer Mailer, resetURL string) *Service {
	s.mailer = mailer
	s.resetURL = resetURL
	return s
}

// WithProfileImages enables profile pictures stored in blobs.
func (s *Service) WithProfileImages(images ImageRepository, blobs blobstore.Store, ttl time.Duration) *Service {
	s.images = images
	s.blobs = blobs
	s.blobTTL = ttl
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a doctor account for an email that passed OTP
// verification. The verification is spent even if creation then fails.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	ok, err := s.verifier.ConsumeVerified(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check verification: %w", err)
	}
	if !ok {
		return nil, ErrNotVerified
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		Role:         auth.RoleDoctor,
		Gender:       req.Gender,
		IDNumber:     strings.TrimSpace(req.IDNumber),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("doctor registered")
	return u, nil
}

// CreateAdmin creates an administrator. Admin capability still requires the
// email to be on the allow-list.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         auth.RoleAdmin,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	tok, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	s.sessions.Publish(auth.Event{Kind: auth.EventSignedIn, UserID: u.ID.String()})
	return &LoginResult{Token: tok.Token, ExpiresAt: tok.ExpiresAt, User: u, Role: u.Role}, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(p *auth.Principal) {
	s.sessions.SignOut(p, "signed out")
}

// RequestPasswordReset emails a reset link when the account exists. Unknown
// emails and delivery failures are not reported to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.mailer == nil {
		return nil
	}
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	tok, err := s.tokens.IssueFor(auth.PurposePasswordReset, u.ID, u.Email, ResetTokenTTL)
	if err != nil {
		return err
	}
	data := map[string]string{
		"name":       u.Name,
		"reset_link": s.resetURL + "?token=" + url.QueryEscape(tok.Token),
		"minutes":    strconv.Itoa(int(ResetTokenTTL / time.Minute)),
	}
	if _, err := s.mailer.SendEmail(ctx, notification.TemplatePasswordReset, data, u.Email, ""); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("password reset email failed")
	}
	return nil
}

// ConfirmPasswordReset sets a new password from a reset token. The token is
// single use and every existing session of the user ends.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	claims, err := s.tokens.Parse(token, auth.PurposePasswordReset)
	if err != nil {
		return ErrInvalidResetToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ErrInvalidResetToken
	}
	p := &auth.Principal{Subject: claims.Subject, TokenID: claims.ID}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if s.revocations != nil && s.revocations.IsRevoked(p) {
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if s.revocations != nil && claims.ExpiresAt != nil {
		s.revocations.Revoke(claims.ID, claims.ExpiresAt.Time)
	}
	s.sessions.EndAllSessions(userID, auth.EventSignedOut, "password reset")
	return nil
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, f ProfileFields) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Name = strings.TrimSpace(f.Name)
	u.Gender = f.Gender
	u.IDNumber = strings.TrimSpace(f.IDNumber)
	u.Phone = f.Phone
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword replaces the password and ends all of the user's sessions,
// including the one that made the change. Clients sign in again afterwards.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, current) {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.sessions.EndAllSessions(userID, auth.EventSignedOut, "password changed")
	return nil
}

// DeleteAccount removes the user and everything they own after checking the
// password.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return ErrWrongPassword
	}

	var storageID string
	if s.images != nil {
		if img, err := s.images.Get(ctx, userID); err == nil {
			storageID = img.StorageID
		}
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	if storageID != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, storageID); err != nil {
			s.logger.Warn().Err(err).Str("storage_id", storageID).Msg("delete profile image")
		}
	}
	s.sessions.EndAllSessions(userID, auth.EventAccountDeleted, "account deleted")
	s.logger.Info().Str("user_id", userID.String()).Msg("account deleted")
	return nil
}

// SearchDoctors matches q against name, email and id number, case-insensitive.
func (s *Service) SearchDoctors(ctx context.Context, q string) ([]*User, error) {
	doctors, err := s.users.ListByRole(ctx, auth.RoleDoctor)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return doctors, nil
	}
	return lo.Filter(doctors, func(u *User, _ int) bool {
		return strings.Contains(strings.ToLower(u.Name), q) ||
			strings.Contains(u.Email, q) ||
			strings.Contains(strings.ToLower(u.IDNumber), q)
	}), nil
}

// ImageUploadURL reserves a fresh storage id for the user's picture.
func (s *Service) ImageUploadURL(ctx context.Context, userID uuid.UUID, contentType string) (*UploadTicket, error) {
	if s.blobs == nil {
		return nil, ErrImagesDisabled
	}
	key := blobstore.ProfileImageKey(userID.String())
	u, err := s.blobs.PresignUpload(ctx, key, contentType, s.blobTTL)
	if err != nil {
		return nil, err
	}
	return &UploadTicket{UploadURL: u, StorageID: key, ExpiresAt: time.Now().Add(s.blobTTL).UTC()}, nil
}

// SetImage points the profile at an uploaded object. The previous object,
// if any, is removed.
func (s *Service) SetImage(ctx context.Context, userID uuid.UUID, storageID string) (*ProfileImage, error) {
	if s.blobs == nil || s.images == nil {
		return nil, ErrImagesDisabled
	}
	if !strings.HasPrefix(storageID, "profiles/"+userID.String()+"/") {
		return nil, ErrImageNotUploaded
	}
	ok, err := s.blobs.Exists(ctx, storageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrImageNotUploaded
	}

	prev, err := s.images.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNoProfileImage) {
		return nil, err
	}
	img := &ProfileImage{UserID: userID, StorageID: storageID}
	if err := s.images.Upsert(ctx, img); err != nil {
		return nil, err
	}
	if prev != nil && prev.StorageID != storageID {
		if err := s.blobs.Delete(ctx, prev.StorageID); err != nil {
			s.logger.Warn().Err(err).Str("storage_id", prev.StorageID).Msg("delete replaced profile image")
		}
	}
	return img, nil
}

// ImageURL returns a short-lived download link for the user's picture.
func (s *Service) ImageURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.blobs == nil || s.images == nil {
		return "", ErrNoProfileImage
	}
	img, err := s.images.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	u, err := s.blobs.PresignDownload(ctx, img.StorageID, s.blobTTL)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return "", ErrNoProfileImage
	}
	return u, err
}

// Profiles adapts the repository to auth.ProfileLookup.
type Profiles struct{ users Repository }

func NewProfiles(users Repository) *Profiles { return &Profiles{users: users} }

func (p *Profiles) ProfileByID(ctx context.Context, id uuid.UUID) (*auth.Profile, error) {
	return toProfile(p.users.GetByID(ctx, id))
}

func (p *Profiles) ProfileByEmail(ctx context.Context, email string) (*auth.Profile, error) {
	return toProfile(p.users.GetByEmail(ctx, normalizeEmail(email)))
}

func toProfile(u *User, err error) (*auth.Profile, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &auth.Profile{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}, nil
}
