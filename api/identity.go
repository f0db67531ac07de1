package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohdragon010/taskflow/domain"
)

const minPasswordLen = 6

// Stable identity error codes. Clients map each code to a fixed user-facing
// message; unknown codes fall back to a generic one.
const (
	codeEmailRegistered    = "email-already-registered"
	codeMalformedEmail     = "malformed-email"
	codeWeakPassword       = "weak-password"
	codeInvalidCredentials = "invalid-credentials"
	codeFederatedRejected  = "federated-rejected"
	codeInternal           = "internal"
)

var identityMessages = map[string]string{
	codeEmailRegistered:    "Email is already in use",
	codeMalformedEmail:     "Invalid email address",
	codeWeakPassword:       "Password should be at least 6 characters",
	codeInvalidCredentials: "Invalid email or password",
	codeFederatedRejected:  "Federated sign-in failed. Please try again.",
	codeInternal:           "Something went wrong, try again",
}

type identityAPI struct {
	store     Store
	auth      Authenticator
	issuer    TokenIssuer
	sessions  SessionStore
	federated FederatedVerifier
	notifier  Notifier
	logger    *log.Logger
}

func identityErr(c echo.Context, status int, code string) error {
	msg, ok := identityMessages[code]
	if !ok {
		msg = identityMessages[codeInternal]
	}
	return c.JSON(status, identityErrorResponse{Code: code, Message: msg})
}

func (i *identityAPI) signup(c echo.Context) error {
	var req credentialsRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return identityErr(c, http.StatusBadRequest, codeMalformedEmail)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return identityErr(c, http.StatusBadRequest, codeMalformedEmail)
	}
	if len(req.Password) < minPasswordLen {
		return identityErr(c, http.StatusBadRequest, codeWeakPassword)
	}

	ctx := c.Request().Context()
	if _, err := i.store.FetchAccountByEmail(ctx, email); err == nil {
		return identityErr(c, http.StatusConflict, codeEmailRegistered)
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		i.logger.Errorf("signup lookup: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		i.logger.Errorf("hash password: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}
	acc := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := i.store.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return identityErr(c, http.StatusConflict, codeEmailRegistered)
		}
		i.logger.Errorf("create account: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}
	return i.openSession(c, acc, http.StatusCreated)
}

func (i *identityAPI) login(c echo.Context) error {
	var req credentialsRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx := c.Request().Context()
	acc, err := i.store.FetchAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return identityErr(c, http.StatusUnauthorized, codeInvalidCredentials)
		}
		i.logger.Errorf("login lookup: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}
	if acc.PasswordHash == "" {
		return identityErr(c, http.StatusUnauthorized, codeInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		return identityErr(c, http.StatusUnauthorized, codeInvalidCredentials)
	}
	return i.openSession(c, acc, http.StatusOK)
}

func (i *identityAPI) federatedLogin(c echo.Context) error {
	if i.federated == nil {
		return identityErr(c, http.StatusNotImplemented, codeFederatedRejected)
	}
	var req federatedRequest
	if err := decodeBody(c, &req); err != nil || req.IDToken == "" {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	fid, err := i.federated.Verify(req.IDToken)
	if err != nil {
		i.logger.Debugf("federated token rejected: %v", err)
		return identityErr(c, http.StatusUnauthorized, codeFederatedRejected)
	}

	ctx := c.Request().Context()
	email := strings.ToLower(fid.Email)
	acc, err := i.store.FetchAccountByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		acc = domain.Account{
			ID:          fid.Subject,
			Email:       email,
			DisplayName: fid.Name,
			CreatedAt:   time.Now().UTC(),
		}
		if err := i.store.CreateAccount(ctx, acc); err != nil && !errors.Is(err, domain.ErrAccountExists) {
			i.logger.Errorf("provision federated account: %v", err)
			return identityErr(c, http.StatusInternalServerError, codeInternal)
		}
	} else if err != nil {
		i.logger.Errorf("federated lookup: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}
	return i.openSession(c, acc, http.StatusOK)
}

func (i *identityAPI) logout(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := i.auth.Principal(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := i.sessions.Delete(ctx, p.SessionID); err != nil {
		i.logger.Errorf("delete session: %v", err)
	}
	i.notifier.Publish(ctx, domain.ChangeEvent{UserID: p.UserID, Type: domain.UserLoggedOut})
	return c.NoContent(http.StatusNoContent)
}

func (i *identityAPI) currentSession(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := i.auth.Principal(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	payload := userPayload{ID: p.UserID, Email: p.Email}
	if acc, err := i.store.FetchAccountByEmail(ctx, p.Email); err == nil {
		payload.DisplayName = acc.DisplayName
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		i.logger.Errorf("session lookup: %v", err)
	}
	return c.JSON(http.StatusOK, sessionResponse{User: payload})
}

func (i *identityAPI) updateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := i.auth.Principal(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req profileRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return c.String(http.StatusBadRequest, "display name must not be empty")
	}
	if err := i.store.UpdateDisplayName(ctx, p.Email, name); err != nil {
		i.logger.Errorf("update display name: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}
	return c.NoContent(http.StatusNoContent)
}

func (i *identityAPI) openSession(c echo.Context, acc domain.Account, status int) error {
	ctx := c.Request().Context()
	sid, err := i.sessions.Create(ctx, acc.ID)
	if err != nil {
		i.logger.Errorf("create session: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}
	token, err := i.issuer.IssueToken(Principal{UserID: acc.ID, Email: acc.Email, SessionID: sid})
	if err != nil {
		i.logger.Errorf("issue token: %v", err)
		return identityErr(c, http.StatusInternalServerError, codeInternal)
	}
	return c.JSON(status, sessionResponse{
		Token: token,
		User:  userPayload{ID: acc.ID, Email: acc.Email, DisplayName: acc.DisplayName},
	})
}
