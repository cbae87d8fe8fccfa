package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

// SaveProfile upserts a profile with its hosts, sources, and avoidance
// rules in one transaction.
func (s *Store) SaveProfile(ctx context.Context, p *profile.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schedule, err := json.Marshal(p.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (id, name, tone, audience, target_duration_min, topic_count, schedule_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tone = excluded.tone,
			audience = excluded.audience,
			target_duration_min = excluded.target_duration_min,
			topic_count = excluded.topic_count,
			schedule_json = excluded.schedule_json,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Tone, p.Audience, p.TargetDurationMin, p.TopicCount,
		string(schedule), p.CreatedAt.Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM hosts WHERE profile_id = ?", p.ID); err != nil {
		return fmt.Errorf("clear hosts: %w", err)
	}
	for i, h := range p.Hosts {
		expertise, err := json.Marshal(h.Expertise)
		if err != nil {
			return fmt.Errorf("marshal expertise: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO hosts (profile_id, position, name, persona, voice_id, style, expertise_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, i, h.Name, h.Persona, h.VoiceID, h.Style, string(expertise))
		if err != nil {
			return fmt.Errorf("insert host: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM content_sources WHERE profile_id = ?", p.ID); err != nil {
		return fmt.Errorf("clear sources: %w", err)
	}
	for _, src := range p.Sources {
		cfg := src.Config
		if len(cfg) == 0 {
			cfg = json.RawMessage("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO content_sources (id, profile_id, kind, name, config_json, priority, credibility, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			src.ID, p.ID, string(src.Kind), src.Name, string(cfg), src.Priority, src.Credibility, src.Active)
		if err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM topic_avoidance WHERE profile_id = ?", p.ID); err != nil {
		return fmt.Errorf("clear avoidance: %w", err)
	}
	for _, rule := range p.Avoidance {
		var until any
		if rule.Until != nil {
			until = rule.Until.UTC().Format(time.RFC3339)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO topic_avoidance (profile_id, keyword, kind, until, min_days_between, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, rule.Keyword, string(rule.Kind), until, rule.MinDaysBetween, now)
		if err != nil {
			return fmt.Errorf("insert avoidance rule: %w", err)
		}
	}

	return tx.Commit()
}

// GetProfile loads a profile and its child rows. Missing profiles return
// (nil, nil).
func (s *Store) GetProfile(ctx context.Context, id string) (*profile.Profile, error) {
	var p profile.Profile
	var scheduleJSON, createdAt, updatedAt string
	var lastRun sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tone, audience, target_duration_min, topic_count, schedule_json, last_scheduled_run, created_at, updated_at
		FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Tone, &p.Audience, &p.TargetDurationMin, &p.TopicCount,
			&scheduleJSON, &lastRun, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if err := json.Unmarshal([]byte(scheduleJSON), &p.Schedule); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	if lastRun.Valid {
		if t, err := time.Parse(time.RFC3339, lastRun.String); err == nil {
			p.Schedule.LastRun = &t
		}
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if err := s.loadHosts(ctx, &p); err != nil {
		return nil, err
	}
	if err := s.loadSources(ctx, &p); err != nil {
		return nil, err
	}
	if err := s.loadAvoidance(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns all profile IDs with names.
func (s *Store) ListProfiles(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// ScheduledProfiles loads every profile whose schedule is enabled.
func (s *Store) ScheduledProfiles(ctx context.Context) ([]*profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM profiles")
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*profile.Profile
	for _, id := range ids {
		p, err := s.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil && p.Schedule.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

// SetLastScheduledRun records when the scheduler last fired for a profile.
func (s *Store) SetLastScheduledRun(ctx context.Context, profileID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE profiles SET last_scheduled_run = ? WHERE id = ?",
		t.UTC().Format(time.RFC3339), profileID)
	return err
}

func (s *Store) loadHosts(ctx context.Context, p *profile.Profile) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, persona, voice_id, style, expertise_json
		FROM hosts WHERE profile_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("query hosts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h profile.Host
		var expertiseJSON string
		if err := rows.Scan(&h.Name, &h.Persona, &h.VoiceID, &h.Style, &expertiseJSON); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(expertiseJSON), &h.Expertise); err != nil {
			return fmt.Errorf("parse expertise: %w", err)
		}
		p.Hosts = append(p.Hosts, h)
	}
	return rows.Err()
}

func (s *Store) loadSources(ctx context.Context, p *profile.Profile) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, config_json, priority, credibility, active
		FROM content_sources WHERE profile_id = ? ORDER BY id`, p.ID)
	if err != nil {
		return fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src profile.ContentSource
		var kind, cfg string
		if err := rows.Scan(&src.ID, &kind, &src.Name, &cfg, &src.Priority, &src.Credibility, &src.Active); err != nil {
			return err
		}
		src.Kind = content.SourceKind(kind)
		src.Config = json.RawMessage(cfg)
		p.Sources = append(p.Sources, src)
	}
	return rows.Err()
}

func (s *Store) loadAvoidance(ctx context.Context, p *profile.Profile) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, kind, until, min_days_between
		FROM topic_avoidance WHERE profile_id = ? ORDER BY id`, p.ID)
	if err != nil {
		return fmt.Errorf("query avoidance: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule profile.AvoidanceRule
		var kind string
		var until sql.NullString
		if err := rows.Scan(&rule.Keyword, &kind, &until, &rule.MinDaysBetween); err != nil {
			return err
		}
		rule.Kind = profile.AvoidanceRuleKind(kind)
		if until.Valid {
			if t, err := time.Parse(time.RFC3339, until.String); err == nil {
				rule.Until = &t
			}
		}
		p.Avoidance = append(p.Avoidance, rule)
	}
	return rows.Err()
}
