package store

import (
	"context"
	"database/sql"
	"fmt"
)

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func (s *SQLStore) GetTwitterAuthor(ctx context.Context, authorID string) (XAuthor, error) {
	var (
		a                  XAuthor
		username, realname sql.NullString
		created            int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, username, realname, created_at FROM x_authors WHERE author_id = $1`, authorID).
		Scan(&a.ID, &a.AuthorID, &username, &realname, &created)
	if err != nil {
		return XAuthor{}, notFound(err, "x author", authorID)
	}
	a.Username, a.RealName = stringPtr(username), stringPtr(realname)
	a.CreatedAt = fromMillis(created)
	return a, nil
}

func (s *SQLStore) CreateTwitterAuthor(ctx context.Context, authorID string, username, realname *string) (XAuthor, error) {
	a := XAuthor{ID: newID(), AuthorID: authorID, Username: username, RealName: realname}
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO x_authors (id, author_id, username, realname, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.AuthorID, nullString(username), nullString(realname), created)
	if err != nil {
		return XAuthor{}, fmt.Errorf("failed to create x author %s: %w", authorID, err)
	}
	a.CreatedAt = fromMillis(created)
	return a, nil
}

const tweetColumns = `id, author_id, tweet_id, tweet_body, thread_id, created_at`

func scanTweet(row scanner) (XTweet, error) {
	var (
		t        XTweet
		threadID sql.NullInt64
		created  int64
	)
	if err := row.Scan(&t.ID, &t.AuthorID, &t.TweetID, &t.TweetBody, &threadID, &created); err != nil {
		return XTweet{}, err
	}
	if threadID.Valid {
		v := threadID.Int64
		t.ThreadID = &v
	}
	t.CreatedAt = fromMillis(created)
	return t, nil
}

func (s *SQLStore) GetTwitterTweet(ctx context.Context, tweetID string) (XTweet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tweetColumns+` FROM x_tweets WHERE tweet_id = $1`, tweetID)
	t, err := scanTweet(row)
	if err != nil {
		return XTweet{}, notFound(err, "tweet", tweetID)
	}
	return t, nil
}

func (s *SQLStore) GetThreadTweets(ctx context.Context, threadID int64) ([]XTweet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tweetColumns+` FROM x_tweets WHERE thread_id = $1 ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %d: %w", threadID, err)
	}
	return collect(rows, scanTweet)
}

func (s *SQLStore) GetAuthorTweets(ctx context.Context, authorID string) ([]XTweet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tweetColumns+` FROM x_tweets WHERE author_id = $1 ORDER BY created_at, id`, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tweets of %s: %w", authorID, err)
	}
	return collect(rows, scanTweet)
}

func (s *SQLStore) AddTwitterTweet(ctx context.Context, authorID, tweetID, tweetBody string, threadID *int64) (XTweet, error) {
	t := XTweet{ID: newID(), AuthorID: authorID, TweetID: tweetID, TweetBody: tweetBody, ThreadID: threadID}
	var thread sql.NullInt64
	if threadID != nil {
		thread = sql.NullInt64{Int64: *threadID, Valid: true}
	}
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO x_tweets (`+tweetColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.AuthorID, t.TweetID, t.TweetBody, thread, created)
	if err != nil {
		return XTweet{}, fmt.Errorf("failed to add tweet %s: %w", tweetID, err)
	}
	t.CreatedAt = fromMillis(created)
	return t, nil
}

func (s *SQLStore) GetTwitterLogs(ctx context.Context, tweetID string) ([]XLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tweet_id, status, message, created_at FROM x_logs WHERE tweet_id = $1 ORDER BY created_at, id`, tweetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs of tweet %s: %w", tweetID, err)
	}
	return collect(rows, func(row scanner) (XLog, error) {
		var (
			l       XLog
			message sql.NullString
			created int64
		)
		if err := row.Scan(&l.ID, &l.TweetID, &l.Status, &message, &created); err != nil {
			return XLog{}, err
		}
		l.Message = stringPtr(message)
		l.CreatedAt = fromMillis(created)
		return l, nil
	})
}

func (s *SQLStore) AddTwitterLog(ctx context.Context, tweetID, status string, message *string) (XLog, error) {
	l := XLog{ID: newID(), TweetID: tweetID, Status: status, Message: message}
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO x_logs (id, tweet_id, status, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.TweetID, l.Status, nullString(message), created)
	if err != nil {
		return XLog{}, fmt.Errorf("failed to add log for tweet %s: %w", tweetID, err)
	}
	l.CreatedAt = fromMillis(created)
	return l, nil
}
