package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// CreateCrew inserts a crew. Crew ids are chosen by the caller.
func (s *SQLStore) CreateCrew(ctx context.Context, c Crew) (Crew, error) {
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crews (id, profile_id, name, description, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.ProfileID, c.Name, c.Description, created)
	if err != nil {
		return Crew{}, fmt.Errorf("failed to create crew %d: %w", c.ID, err)
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// GetCrew returns a crew by id.
func (s *SQLStore) GetCrew(ctx context.Context, crewID int64) (Crew, error) {
	var (
		c       Crew
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, profile_id, name, description, created_at FROM crews WHERE id = $1`, crewID).
		Scan(&c.ID, &c.ProfileID, &c.Name, &c.Description, &created)
	if err != nil {
		return Crew{}, notFound(err, "crew", fmt.Sprint(crewID))
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// AddCrewAgent appends an agent to a crew.
func (s *SQLStore) AddCrewAgent(ctx context.Context, a Agent) (Agent, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.Tools == nil {
		a.Tools = []string{}
	}
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to encode agent tools: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crew_agents (id, crew_id, role, goal, backstory, agent_tools, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.CrewID, a.Role, a.Goal, a.Backstory, string(tools), a.Position)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to add agent to crew %d: %w", a.CrewID, err)
	}
	return a, nil
}

// GetCrewAgents returns the crew's agents in position order.
func (s *SQLStore) GetCrewAgents(ctx context.Context, crewID int64) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, crew_id, role, goal, backstory, agent_tools, position
		 FROM crew_agents WHERE crew_id = $1 ORDER BY position, id`, crewID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agents of crew %d: %w", crewID, err)
	}
	return collect(rows, func(row scanner) (Agent, error) {
		var (
			a     Agent
			tools string
		)
		if err := row.Scan(&a.ID, &a.CrewID, &a.Role, &a.Goal, &a.Backstory, &tools, &a.Position); err != nil {
			return Agent{}, err
		}
		if err := json.Unmarshal([]byte(tools), &a.Tools); err != nil {
			return Agent{}, fmt.Errorf("agent %s has malformed tools: %w", a.ID, err)
		}
		return a, nil
	})
}

// AddCrewTask appends a task to a crew.
func (s *SQLStore) AddCrewTask(ctx context.Context, t Task) (Task, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crew_tasks (id, crew_id, agent_id, description, expected_output, position)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.CrewID, t.AgentID, t.Description, t.ExpectedOutput, t.Position)
	if err != nil {
		return Task{}, fmt.Errorf("failed to add task to crew %d: %w", t.CrewID, err)
	}
	return t, nil
}

// GetCrewTasks returns the crew's tasks in position order.
func (s *SQLStore) GetCrewTasks(ctx context.Context, crewID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, crew_id, agent_id, description, expected_output, position
		 FROM crew_tasks WHERE crew_id = $1 ORDER BY position, id`, crewID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks of crew %d: %w", crewID, err)
	}
	return collect(rows, func(row scanner) (Task, error) {
		var t Task
		err := row.Scan(&t.ID, &t.CrewID, &t.AgentID, &t.Description, &t.ExpectedOutput, &t.Position)
		return t, err
	})
}
