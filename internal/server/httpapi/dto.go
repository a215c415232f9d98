package httpapi

import (
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type validatable interface {
	Validate() error
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst validatable) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.WrapError(common.ErrorInvalidInput, "malformed request body", err)
	}
	return dst.Validate()
}

// registerRequest is the public self-service signup. Only USER accounts can
// be created here; admins are provisioned with cmd/admin.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.Role, validation.In(string(models.RoleUser))),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, 72)),
	)
}

// commitAvatarRequest carries the ETag the client got from the PUT. When it
// is empty the stored object's ETag is used.
type commitAvatarRequest struct {
	Key  string `json:"key"`
	ETag string `json:"etag"`
}

func (r commitAvatarRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required),
	)
}

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
	AccountID    string `json:"accountId"`
	Role         string `json:"role"`
}

func newAuthResponse(res *services.AuthResult) authResponse {
	return authResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Email:        res.Email,
		AccountID:    res.AccountID,
		Role:         string(res.Role),
	}
}

type accountResponse struct {
	AccountID      string `json:"accountId"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}

type messageResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type uploadURLResponse struct {
	PutURL    string `json:"putUrl"`
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
}

type avatarResponse struct {
	AvatarURL  string `json:"avatarUrl"`
	AvatarKey  string `json:"avatarKey"`
	AvatarETag string `json:"avatarEtag"`
}
