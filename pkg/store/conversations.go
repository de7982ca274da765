package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// CreateConversation inserts a conversation, assigning an id when empty.
func (s *SQLStore) CreateConversation(ctx context.Context, c Conversation) (Conversation, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, profile_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.ProfileID, c.Name, created)
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// GetDetailedConversation returns a conversation with its jobs.
func (s *SQLStore) GetDetailedConversation(ctx context.Context, conversationID string) (DetailedConversation, error) {
	var (
		c       Conversation
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, profile_id, name, created_at FROM conversations WHERE id = $1`, conversationID).
		Scan(&c.ID, &c.ProfileID, &c.Name, &created)
	if err != nil {
		return DetailedConversation{}, notFound(err, "conversation", conversationID)
	}
	c.CreatedAt = fromMillis(created)

	jobs, err := s.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return DetailedConversation{}, err
	}
	return DetailedConversation{Conversation: c, Jobs: jobs}, nil
}

// GetConversationHistory returns the conversation's jobs, oldest first.
func (s *SQLStore) GetConversationHistory(ctx context.Context, conversationID string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile_id, conversation_id, crew_id, input, result, tokens, messages, created_at
		 FROM jobs WHERE conversation_id = $1 ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history of conversation %s: %w", conversationID, err)
	}
	return collect(rows, scanJob)
}

func scanJob(row scanner) (Job, error) {
	var (
		j                       Job
		input, result, messages string
		created                 int64
	)
	if err := row.Scan(&j.ID, &j.ProfileID, &j.ConversationID, &j.CrewID, &input, &result, &j.Tokens, &messages, &created); err != nil {
		return Job{}, err
	}
	if err := json.Unmarshal([]byte(input), &j.Input); err != nil {
		return Job{}, fmt.Errorf("job %s has malformed input: %w", j.ID, err)
	}
	if err := json.Unmarshal([]byte(result), &j.Result); err != nil {
		return Job{}, fmt.Errorf("job %s has malformed result: %w", j.ID, err)
	}
	if err := json.Unmarshal([]byte(messages), &j.Messages); err != nil {
		return Job{}, fmt.Errorf("job %s has malformed messages: %w", j.ID, err)
	}
	j.CreatedAt = fromMillis(created)
	return j, nil
}

// AddJob records a crew execution.
func (s *SQLStore) AddJob(ctx context.Context, nj NewJob) (Job, error) {
	j := Job{
		ID:             newID(),
		ProfileID:      nj.ProfileID,
		ConversationID: nj.ConversationID,
		CrewID:         nj.CrewID,
		Input:          nj.Input,
		Result:         nj.Result,
		Tokens:         nj.Tokens,
		Messages:       nj.Messages,
	}
	if j.Input == nil {
		j.Input = map[string]interface{}{}
	}
	if j.Result == nil {
		j.Result = map[string]interface{}{}
	}
	if j.Messages == nil {
		j.Messages = []map[string]interface{}{}
	}

	input, err := json.Marshal(j.Input)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode job input: %w", err)
	}
	result, err := json.Marshal(j.Result)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode job result: %w", err)
	}
	messages, err := json.Marshal(j.Messages)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode job messages: %w", err)
	}

	created := s.nowMillis()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, profile_id, conversation_id, crew_id, input, result, tokens, messages, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID, j.ProfileID, j.ConversationID, j.CrewID, string(input), string(result), j.Tokens, string(messages), created)
	if err != nil {
		return Job{}, fmt.Errorf("failed to add job: %w", err)
	}
	j.CreatedAt = fromMillis(created)

	s.logger.Debug().
		Str("job_id", j.ID).
		Int64("crew_id", j.CrewID).
		Int("tokens", j.Tokens).
		Msg("Job recorded")

	return j, nil
}
