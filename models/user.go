package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

// UserSettings holds per-organizer preferences and the mobile-money account
// the webhook matches notifications against. Created automatically with the
// user.
type UserSettings struct {
	ID                   int       `gorm:"primary_key" json:"id"`
	OwnerId              int       `gorm:"index;not null;unique" json:"owner_id"`
	PreferredCurrency    string    `gorm:"size:10;not null;default:KES" json:"preferred_currency"`
	NotificationsEnabled bool      `gorm:"not null;default:true" json:"notifications_enabled"`
	MpesaPaybillNumber   string    `gorm:"size:20" json:"mpesa_paybill_number"`
	MpesaTillNumber      string    `gorm:"size:20" json:"mpesa_till_number"`
	MpesaAccountName     string    `gorm:"size:50" json:"mpesa_account_name"`
	MpesaPhoneNumber     string    `gorm:"size:20;index" json:"mpesa_phone_number"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type UpdateUserSettingsInput struct {
	PreferredCurrency    *string `json:"preferred_currency"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	MpesaPaybillNumber   *string `json:"mpesa_paybill_number"`
	MpesaTillNumber      *string `json:"mpesa_till_number"`
	MpesaAccountName     *string `json:"mpesa_account_name"`
	MpesaPhoneNumber     *string `json:"mpesa_phone_number"`
}

type LoginInfo struct {
	Token    string `json:"token"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}

func (u *User) PrepareGive() {
	u.Password = ""
}

func RegisterUser(ctx context.Context, input *NewUser) (*User, error) {

	db := config.GetDB()
	var count int64

	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("email", "Invalid email address.")
	}
	if len(input.Password) < 6 {
		return nil, utils.NewValidationError("password", "Password must be at least 6 characters.")
	}

	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", input.Username).Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("username", "Username is already taken.")
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username: input.Username,
		Password: string(hashedPassword),
		IsActive: utils.NewTrue(),
	}
	if input.Email != "" {
		email := strings.ToLower(input.Email)
		user.Email = &email
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// settings row exists from the first request on
	settings := UserSettings{OwnerId: user.ID}
	if err := tx.WithContext(ctx).Create(&settings).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	user.PrepareGive()
	return &user, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()

	user := User{}
	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
	if err != nil {
		return nil, errors.New("invalid username or password")
	}

	err = utils.ComparePassword(user.Password, password)
	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return nil, errors.New("invalid username or password")
	}

	if user.IsActive == nil || !*user.IsActive {
		return nil, errors.New("user is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	// track live tokens so logout can revoke them
	if err := config.AddRedisSet("Tokens:"+user.Username, token); err != nil {
		return nil, err
	}

	return &LoginInfo{Token: token, UserId: user.ID, Username: user.Username}, nil
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

func ChangePassword(ctx context.Context, oldPassword string, newPassword string) (bool, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return false, errors.New("user id is required")
	}

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).First(&user, userId).Error; err != nil {
		return false, utils.ErrorRecordNotFound
	}

	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return false, utils.NewValidationError("old_password", "Wrong password.")
	}
	if len(newPassword) < 6 {
		return false, utils.NewValidationError("new_password", "Password must be at least 6 characters.")
	}
	if utils.ComparePassword(user.Password, newPassword) == nil {
		return false, utils.NewValidationError("new_password", "New password cannot be the same as the old password.")
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return false, err
	}
	if err := db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).Update("password", string(hashed)).Error; err != nil {
		return false, err
	}
	return true, nil
}

// GetUserSettings returns the caller's settings, creating the row when an
// account predates the settings table.
func GetUserSettings(ctx context.Context) (*UserSettings, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	var settings UserSettings
	err := db.WithContext(ctx).Where("owner_id = ?", userId).First(&settings).Error
	if err == nil {
		return &settings, nil
	}

	settings = UserSettings{OwnerId: userId}
	if err := db.WithContext(ctx).Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func UpdateUserSettings(ctx context.Context, input *UpdateUserSettingsInput) (*UserSettings, error) {

	settings, err := GetUserSettings(ctx)
	if err != nil {
		return nil, err
	}

	if input.PreferredCurrency != nil {
		settings.PreferredCurrency = *input.PreferredCurrency
	}
	if input.NotificationsEnabled != nil {
		settings.NotificationsEnabled = *input.NotificationsEnabled
	}
	if input.MpesaPaybillNumber != nil {
		settings.MpesaPaybillNumber = *input.MpesaPaybillNumber
	}
	if input.MpesaTillNumber != nil {
		settings.MpesaTillNumber = *input.MpesaTillNumber
	}
	if input.MpesaAccountName != nil {
		settings.MpesaAccountName = *input.MpesaAccountName
	}
	if input.MpesaPhoneNumber != nil {
		settings.MpesaPhoneNumber = utils.NormalizePhoneNumber(*input.MpesaPhoneNumber)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// FindOwnerByPaybill resolves the organizer a mobile-money notification
// belongs to, by paybill or till number. Used by the webhook before any
// owner-scoped query runs.
func FindOwnerByPaybill(ctx context.Context, shortCode string) (int, error) {
	// Every registered user starts with blank settings; an empty short code
	// would match the first of them.
	if strings.TrimSpace(shortCode) == "" {
		return 0, utils.ErrorRecordNotFound
	}
	db := config.GetDB()
	var settings UserSettings
	err := db.WithContext(ctx).
		Where("mpesa_paybill_number = ? OR mpesa_till_number = ?", shortCode, shortCode).
		First(&settings).Error
	if err != nil {
		return 0, utils.ErrorRecordNotFound
	}
	return settings.OwnerId, nil
}
