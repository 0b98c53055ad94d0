package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/AnshRaj112/eyeglaze/pkg/utils"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	loginPath           = "/api/auth/login"
	registerPath        = "/api/auth/register"
	identityServiceName = "sign-in service"
)

type credentialsRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	BirthDate string `json:"birthDate,omitempty"`
}

// IdentityClient signs users in and out against the identity backend and
// keeps the Session in step.
type IdentityClient struct {
	baseURL string
	client  HTTPDoer
	session *Session
	log     *zap.Logger
}

func NewIdentityClient(baseURL string, client HTTPDoer, session *Session, log *zap.Logger) *IdentityClient {
	return &IdentityClient{baseURL: baseURL, client: client, session: session, log: log}
}

// Login authenticates email/password and makes the result the active identity.
func (c *IdentityClient) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	body, err := c.post(ctx, loginPath, credentialsRequest{Username: email, Password: password}, "Login")
	if err != nil {
		c.log.Warn("login failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	identity := mapIdentity(body, "data._id", "", email)
	c.session.SignIn(ctx, identity)
	c.log.Info("signed in", zap.String("email", identity.Email))
	return &identity, nil
}

// Register creates an account and signs it in. The caller's name wins over
// the one derived from the email.
func (c *IdentityClient) Register(ctx context.Context, name, email, password, birthDate string) (*models.Identity, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	req := credentialsRequest{Username: email, Password: password, BirthDate: strings.TrimSpace(birthDate)}
	body, err := c.post(ctx, registerPath, req, "Registration")
	if err != nil {
		c.log.Warn("registration failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	identity := mapIdentity(body, "data.id", strings.TrimSpace(name), email)
	c.session.SignIn(ctx, identity)
	c.log.Info("registered", zap.String("email", identity.Email))
	return &identity, nil
}

// Logout forgets the active identity. No backend call is made.
func (c *IdentityClient) Logout(ctx context.Context) {
	c.session.SignOut(ctx)
}

func (c *IdentityClient) post(ctx context.Context, path string, payload credentialsRequest, action string) ([]byte, error) {
	resp, err := postJSON(ctx, c.client, joinURL(c.baseURL, path), payload)
	if err != nil {
		if isTransport(err) {
			return nil, transportError(StageIdentity, identityServiceName, err)
		}
		return nil, &PipelineError{Stage: StageIdentity, Kind: KindBackend, Message: action + " failed", Err: err}
	}
	if !resp.OK() || !resp.StatusSuccess() {
		msg := strings.TrimSpace(gjson.GetBytes(resp.Body, "message").String())
		if msg == "" {
			msg = fmt.Sprintf("%s failed with status: %d", action, resp.Status)
		}
		return nil, backendError(StageIdentity, resp.Status, msg)
	}
	return resp.Body, nil
}

// mapIdentity converts the backend's user record into an Identity.
func mapIdentity(body []byte, idPath, name, requestedEmail string) models.Identity {
	email := strings.TrimSpace(gjson.GetBytes(body, "data.username").String())
	if email == "" {
		email = requestedEmail
	}
	identity := models.Identity{
		ID:    gjson.GetBytes(body, idPath).String(),
		Email: email,
		Name:  name,
	}
	if identity.Name == "" {
		identity.Name = utils.DisplayNameFromEmail(email)
	}
	if age := gjson.GetBytes(body, "data.age"); age.Exists() && age.Type == gjson.Number {
		v := int(age.Int())
		identity.Age = &v
	}
	return identity
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return &PipelineError{Stage: StageIdentity, Kind: KindPrecondition, Message: "Email and password are required"}
	}
	if err := utils.ValidateEmail(email); err != nil {
		return &PipelineError{Stage: StageIdentity, Kind: KindPrecondition, Message: err.Error(), Err: err}
	}
	return nil
}
