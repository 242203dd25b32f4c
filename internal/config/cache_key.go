package config

import "fmt"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for a validated exam definition.
// ref is the identifier the exam was requested by (exam or course id).
func (r *CacheKeyStruct) ExamDefinitionKey(ref string) string {
	return fmt.Sprintf("exam:%s:definition", ref)
}

// AttemptOutcomeKey returns the cache key for a completed attempt's outcome.
func (r *CacheKeyStruct) AttemptOutcomeKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:outcome", attemptID)
}

// ExamAttemptsChannel returns the Redis PubSub channel for attempt events of an exam.
func (r *CacheKeyStruct) ExamAttemptsChannel(examID string) string {
	return fmt.Sprintf("exam:%s:attempts:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
