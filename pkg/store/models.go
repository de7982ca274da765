package store

import "time"

// Profile is an authenticated account. AccountIndex selects the derived
// wallet the crew acts with.
type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	AccountIndex int       `json:"account_index"`
	WalletID     string    `json:"wallet_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session binds a bearer token to a profile until it expires.
type Session struct {
	Token     string    `json:"token"`
	ProfileID string    `json:"profile_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DetailedConversation is a conversation with its jobs, oldest first.
type DetailedConversation struct {
	Conversation
	Jobs []Job `json:"jobs"`
}

// Job records one crew execution.
type Job struct {
	ID             string                   `json:"id"`
	ProfileID      string                   `json:"profile_id"`
	ConversationID string                   `json:"conversation_id"`
	CrewID         int64                    `json:"crew_id"`
	Input          map[string]interface{}   `json:"input"`
	Result         map[string]interface{}   `json:"result"`
	Tokens         int                      `json:"tokens"`
	Messages       []map[string]interface{} `json:"messages"`
	CreatedAt      time.Time                `json:"created_at"`
}

// NewJob carries the fields of a job to record.
type NewJob struct {
	ProfileID      string
	ConversationID string
	CrewID         int64
	Input          map[string]interface{}
	Result         map[string]interface{}
	Tokens         int
	Messages       []map[string]interface{}
}

type Crew struct {
	ID          int64     `json:"id"`
	ProfileID   string    `json:"profile_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Agent is one member of a crew. Tools lists the tool names it may call.
type Agent struct {
	ID        string   `json:"id"`
	CrewID    int64    `json:"crew_id"`
	Role      string   `json:"role"`
	Goal      string   `json:"goal"`
	Backstory string   `json:"backstory"`
	Tools     []string `json:"agent_tools"`
	Position  int      `json:"position"`
}

type Task struct {
	ID             string `json:"id"`
	CrewID         int64  `json:"crew_id"`
	AgentID        string `json:"agent_id"`
	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output"`
	Position       int    `json:"position"`
}

// Cron schedules a crew run with a fixed input.
type Cron struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	CrewID    int64     `json:"crew_id"`
	Schedule  string    `json:"schedule"`
	Input     string    `json:"input"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpandedCron is a cron joined with its profile and crew.
type ExpandedCron struct {
	Cron
	Profile Profile `json:"profile"`
	Crew    Crew    `json:"crew"`
}

type TelegramUser struct {
	ID           string    `json:"telegram_user_id"`
	Username     string    `json:"username"`
	ProfileID    string    `json:"profile_id"`
	IsRegistered bool      `json:"is_registered"`
	CreatedAt    time.Time `json:"created_at"`
}

// TelegramUserUpdate changes only the non-nil fields.
type TelegramUserUpdate struct {
	Username     *string
	ProfileID    *string
	IsRegistered *bool
}

type XAuthor struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Username  *string   `json:"username,omitempty"`
	RealName  *string   `json:"realname,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type XTweet struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	TweetID   string    `json:"tweet_id"`
	TweetBody string    `json:"tweet_body"`
	ThreadID  *int64    `json:"thread_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type XLog struct {
	ID        string    `json:"id"`
	TweetID   string    `json:"tweet_id"`
	Status    string    `json:"status"`
	Message   *string   `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
