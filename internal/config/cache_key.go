package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's login session
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AttemptLockKey returns the cache key for an attempt's transition lock
func (r *CacheKeyStruct) AttemptLockKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:lock", attemptID)
}

// AttemptActivityKey returns the cache key for an attempt's last activity timestamp
func (r *CacheKeyStruct) AttemptActivityKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:last_activity", attemptID)
}

// SectionStartKey returns the cache key for a section attempt's start time
func (r *CacheKeyStruct) SectionStartKey(attemptID, sectionID string) string {
	return fmt.Sprintf("attempt:%s:section:%s:start", attemptID, sectionID)
}

var CacheKey = NewCacheKeyStruct()
