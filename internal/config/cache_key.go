package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// SecurityAlertsChannel returns the Redis PubSub channel carrying every
// security log entry, regardless of which room it belongs to.
func (r *CacheKeyStruct) SecurityAlertsChannel() string {
	return "security:alerts"
}

var CacheKey = NewCacheKeyStruct()
