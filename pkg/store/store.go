// Package store persists profiles, crews, conversations, crons, Telegram
// users and the X bot's records.
//
// Database is the contract every backend implements. SQLStore backs it with
// sqlite3 or PostgreSQL; rediscache wraps any Database with a session cache.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a single record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidSession is returned for unknown or expired session tokens
	ErrInvalidSession = errors.New("invalid or expired session token")
)

// Database is the persistence contract of the service.
type Database interface {
	// Conversations and jobs
	GetDetailedConversation(ctx context.Context, conversationID string) (DetailedConversation, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]Job, error)
	AddJob(ctx context.Context, job NewJob) (Job, error)

	// Crons
	GetEnabledCrons(ctx context.Context) ([]Cron, error)
	GetEnabledCronsExpanded(ctx context.Context) ([]ExpandedCron, error)

	// Telegram users
	GetTelegramUser(ctx context.Context, telegramUserID string) (TelegramUser, error)
	UpdateTelegramUser(ctx context.Context, telegramUserID string, update TelegramUserUpdate) error
	GetTelegramUserByUsername(ctx context.Context, username string) (TelegramUser, error)
	GetAllRegisteredTelegramUsers(ctx context.Context) ([]TelegramUser, error)
	GetTelegramUserByProfile(ctx context.Context, profileID string) (TelegramUser, error)

	// Crews
	GetCrewAgents(ctx context.Context, crewID int64) ([]Agent, error)
	GetCrewTasks(ctx context.Context, crewID int64) ([]Task, error)

	// Auth and profiles
	VerifySessionToken(ctx context.Context, token string) (string, error)
	GetProfile(ctx context.Context, identifier string) (Profile, error)

	// X bot
	GetTwitterAuthor(ctx context.Context, authorID string) (XAuthor, error)
	CreateTwitterAuthor(ctx context.Context, authorID string, username, realname *string) (XAuthor, error)
	GetTwitterTweet(ctx context.Context, tweetID string) (XTweet, error)
	GetThreadTweets(ctx context.Context, threadID int64) ([]XTweet, error)
	GetAuthorTweets(ctx context.Context, authorID string) ([]XTweet, error)
	AddTwitterTweet(ctx context.Context, authorID, tweetID, tweetBody string, threadID *int64) (XTweet, error)
	GetTwitterLogs(ctx context.Context, tweetID string) ([]XLog, error)
	AddTwitterLog(ctx context.Context, tweetID, status string, message *string) (XLog, error)
}
