package models

import (
	"context"
	"errors"
	"time"

	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/utils"
)

// Donor is a person who pledges toward events. Phone numbers are stored
// normalized so incoming payments can be matched back to pledges.
type Donor struct {
	ID          int       `gorm:"primary_key" json:"id"`
	OwnerId     int       `gorm:"index;not null" json:"owner_id"`
	Name        string    `gorm:"size:255;not null;index" json:"name" binding:"required"`
	PhoneNumber string    `gorm:"size:20;index" json:"phone_number"`
	Email       string    `gorm:"size:255" json:"email"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDonor struct {
	Name        string `json:"name" binding:"required"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Notes       string `json:"notes"`
}

func (input *NewDonor) validate() error {
	if input.Name == "" {
		return utils.NewValidationError("name", "Donor name cannot be empty.")
	}
	if input.PhoneNumber != "" {
		if err := utils.ValidatePhoneNumber(input.PhoneNumber, utils.CountryCode); err != nil {
			return utils.NewValidationError("phone_number", "Phone number is not valid.")
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "Email address is not valid.")
	}
	return nil
}

func CreateDonor(ctx context.Context, input *NewDonor) (*Donor, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	phone := input.PhoneNumber
	if phone != "" {
		phone = utils.NormalizePhoneNumber(phone)
	}

	donor := Donor{
		OwnerId:     ownerId,
		Name:        input.Name,
		PhoneNumber: phone,
		Email:       input.Email,
		Notes:       input.Notes,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&donor).Error; err != nil {
		return nil, err
	}
	return &donor, nil
}

func UpdateDonor(ctx context.Context, id int, input *NewDonor) (*Donor, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[Donor](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	phone := input.PhoneNumber
	if phone != "" {
		phone = utils.NormalizePhoneNumber(phone)
	}

	existing.Name = input.Name
	existing.PhoneNumber = phone
	existing.Email = input.Email
	existing.Notes = input.Notes

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, err
	}
	return existing, nil
}

// DeleteDonor removes the donor; their pledges survive with the donor link
// cleared, the same way deleting a pledge keeps its payments.
func DeleteDonor(ctx context.Context, id int) (*Donor, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[Donor](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Model(&Pledge{}).
		Where("donor_id = ?", id).
		Update("donor_id", nil).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Donor{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetDonor(ctx context.Context, id int) (*Donor, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[Donor](ctx, ownerId, id)
}

func GetDonors(ctx context.Context) ([]*Donor, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	var results []*Donor
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).
		Order("name ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FindDonorByPhone returns the owner's donor with the given normalized phone
// number, or nil when none exists.
func FindDonorByPhone(ctx context.Context, ownerId int, phone string) (*Donor, error) {
	normalized := utils.NormalizePhoneNumber(phone)
	if normalized == "" {
		return nil, nil
	}
	db := config.GetDB()
	var donor Donor
	err := db.WithContext(ctx).
		Where("owner_id = ? AND phone_number = ?", ownerId, normalized).
		Order("id DESC").
		First(&donor).Error
	if err != nil {
		return nil, nil
	}
	return &donor, nil
}
