package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AssessmentPayloadKey returns the cache key for an assessment's member payload
func (r *CacheKeyStruct) AssessmentPayloadKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:payload", assessmentID)
}

// AssessmentAnswerKey returns the cache key for an assessment's grading keys
func (r *CacheKeyStruct) AssessmentAnswerKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:key", assessmentID)
}

// AssessmentScoresKey returns the sorted-set key holding every completed
// attempt's percentage for percentile ranking
func (r *CacheKeyStruct) AssessmentScoresKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:scores", assessmentID)
}

// AssessmentLeaderboardKey returns the sorted-set key holding each user's
// best percentage
func (r *CacheKeyStruct) AssessmentLeaderboardKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:leaderboard", assessmentID)
}

// LeaderboardChannel returns the Redis PubSub channel for leaderboard updates
func (r *CacheKeyStruct) LeaderboardChannel(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:leaderboard:events", assessmentID)
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// UserActiveAttemptKey returns the cache key for a user's currently live attempt
func (r *CacheKeyStruct) UserActiveAttemptKey(userID string) string {
	return fmt.Sprintf("user:%s:active_attempt", userID)
}

var CacheKey = NewCacheKeyStruct()
