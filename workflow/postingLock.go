package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireOwnerPostingLock serializes payment application per owner across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireOwnerPostingLock(tx *gorm.DB, ownerId int) error {
	lockName := fmt.Sprintf("posting:owner:%d", ownerId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for owner_id=%d", ownerId)
	}
	return nil
}

func ReleaseOwnerPostingLock(tx *gorm.DB, ownerId int) {
	lockName := fmt.Sprintf("posting:owner:%d", ownerId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
