package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Episode lifecycle states.
const (
	EpisodeStatusDraft     = "draft"
	EpisodeStatusPublished = "published"
	EpisodeStatusArchived  = "archived"
)

// Episode is one produced show.
type Episode struct {
	ID              string
	ProfileID       string
	Title           string
	Date            time.Time
	Status          string
	ScriptPath      string
	AudioPath       string
	DurationSeconds float64
	PlayCount       int
	Segments        []EpisodeSegment
	CreatedAt       time.Time
}

// EpisodeSegment is one section's slot in the episode audio: the intro,
// a topic, or the outro.
type EpisodeSegment struct {
	TopicID          string
	Title            string
	ContentType      string
	AudioPath        string
	StartTimeSeconds float64
	DurationSeconds  float64
}

// CoveredTopic is one row of a profile's topic history.
type CoveredTopic struct {
	TopicName string
	Category  string
	EpisodeID string
	CoveredAt time.Time
}

// SaveEpisode persists the episode, its segments, and its topic history
// rows in one transaction. Re-saving the same episode ID replaces it.
func (s *Store) SaveEpisode(ctx context.Context, ep *Episode, covered []CoveredTopic) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	if ep.Status == "" {
		ep.Status = EpisodeStatusDraft
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO episodes (id, profile_id, title, date, status, script_path, audio_path, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			script_path = excluded.script_path,
			audio_path = excluded.audio_path,
			duration_seconds = excluded.duration_seconds`,
		ep.ID, ep.ProfileID, ep.Title, ep.Date.UTC().Format(time.RFC3339), ep.Status,
		ep.ScriptPath, ep.AudioPath, ep.DurationSeconds, ep.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert episode: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM segments WHERE episode_id = ?", ep.ID); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}
	for i, seg := range ep.Segments {
		contentType := seg.ContentType
		if contentType == "" {
			contentType = "topic"
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO segments (episode_id, position, topic_id, title, content_type, audio_path, start_time_seconds, duration_seconds)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ep.ID, i, seg.TopicID, seg.Title, contentType, seg.AudioPath, seg.StartTimeSeconds, seg.DurationSeconds)
		if err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM topic_history WHERE episode_id = ?", ep.ID); err != nil {
		return fmt.Errorf("clear topic history: %w", err)
	}
	for _, c := range covered {
		at := c.CoveredAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO topic_history (profile_id, episode_id, topic_name, category, covered_at)
			VALUES (?, ?, ?, ?, ?)`,
			ep.ProfileID, ep.ID, c.TopicName, c.Category, at.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert topic history: %w", err)
		}
	}

	return tx.Commit()
}

// GetEpisode loads one episode with its segments. Missing episodes
// return (nil, nil).
func (s *Store) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	var ep Episode
	var date, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, title, date, status, script_path, audio_path, duration_seconds, play_count, created_at
		FROM episodes WHERE id = ?`, id).
		Scan(&ep.ID, &ep.ProfileID, &ep.Title, &date, &ep.Status, &ep.ScriptPath, &ep.AudioPath,
			&ep.DurationSeconds, &ep.PlayCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query episode: %w", err)
	}
	ep.Date, _ = time.Parse(time.RFC3339, date)
	ep.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_id, title, content_type, audio_path, start_time_seconds, duration_seconds
		FROM segments WHERE episode_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seg EpisodeSegment
		if err := rows.Scan(&seg.TopicID, &seg.Title, &seg.ContentType, &seg.AudioPath, &seg.StartTimeSeconds, &seg.DurationSeconds); err != nil {
			return nil, err
		}
		ep.Segments = append(ep.Segments, seg)
	}
	return &ep, rows.Err()
}

// ListEpisodes returns a profile's episodes, newest first.
func (s *Store) ListEpisodes(ctx context.Context, profileID string, limit int) ([]*Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, title, date, status, script_path, audio_path, duration_seconds, play_count, created_at
		FROM episodes WHERE profile_id = ? ORDER BY date DESC LIMIT ?`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []*Episode
	for rows.Next() {
		var ep Episode
		var date, createdAt string
		if err := rows.Scan(&ep.ID, &ep.ProfileID, &ep.Title, &date, &ep.Status, &ep.ScriptPath,
			&ep.AudioPath, &ep.DurationSeconds, &ep.PlayCount, &createdAt); err != nil {
			return nil, err
		}
		ep.Date, _ = time.Parse(time.RFC3339, date)
		ep.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &ep)
	}
	return out, rows.Err()
}

// IncrementPlayCount bumps an episode's play counter.
func (s *Store) IncrementPlayCount(ctx context.Context, episodeID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE episodes SET play_count = play_count + 1 WHERE id = ?", episodeID)
	if err != nil {
		return fmt.Errorf("increment play count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("episode %s not found", episodeID)
	}
	return nil
}

// RecentTopics returns the topics a profile covered within the window,
// newest first. The continuity and avoidance passes both read this.
func (s *Store) RecentTopics(ctx context.Context, profileID string, since time.Time) ([]CoveredTopic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_name, category, episode_id, covered_at
		FROM topic_history
		WHERE profile_id = ? AND covered_at >= ?
		ORDER BY covered_at DESC`,
		profileID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query topic history: %w", err)
	}
	defer rows.Close()

	var out []CoveredTopic
	for rows.Next() {
		var c CoveredTopic
		var at string
		if err := rows.Scan(&c.TopicName, &c.Category, &c.EpisodeID, &at); err != nil {
			return nil, err
		}
		c.CoveredAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveNewsletter records where an episode's newsletter was written.
func (s *Store) SaveNewsletter(ctx context.Context, episodeID, profileID, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO newsletters (episode_id, profile_id, path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET path = excluded.path`,
		episodeID, profileID, path, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save newsletter: %w", err)
	}
	return nil
}

// Setting reads one app setting; missing keys return "".
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts one app setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
