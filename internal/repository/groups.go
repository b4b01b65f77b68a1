package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studycompanion/server/internal/models"
)

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// Create inserts a study group and makes its creator the first member.
func (r *GroupRepository) Create(ctx context.Context, name string, subject *string, createdBy string) (*models.StudyGroup, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var g models.StudyGroup
	err = tx.QueryRow(ctx, `
		INSERT INTO study_groups (name, subject, created_by)
		VALUES ($1, $2, $3::uuid)
		RETURNING id::text, name, subject, created_by::text, created_at, updated_at
	`, name, subject, createdBy).
		Scan(&g.ID, &g.Name, &g.Subject, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO study_group_members (group_id, user_id) VALUES ($1::uuid, $2::uuid)
	`, g.ID, createdBy); err != nil {
		return nil, fmt.Errorf("add creator: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &g, nil
}

// ListForUser returns the groups userID belongs to, most recently created first.
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]models.StudyGroup, error) {
	if !validIDs(userID) {
		return []models.StudyGroup{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT g.id::text, g.name, g.subject, g.created_by::text, g.created_at, g.updated_at
		FROM study_groups g
		JOIN study_group_members m ON m.group_id = g.id
		WHERE m.user_id = $1::uuid
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := []models.StudyGroup{}
	for rows.Next() {
		var g models.StudyGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Subject, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Get returns a group with its members.
func (r *GroupRepository) Get(ctx context.Context, groupID string) (*models.StudyGroupWithMembers, error) {
	if !validIDs(groupID) {
		return nil, ErrNotFound
	}

	var g models.StudyGroupWithMembers
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, subject, created_by::text, created_at, updated_at
		FROM study_groups WHERE id = $1::uuid
	`, groupID).Scan(&g.ID, &g.Name, &g.Subject, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT u.id::text, u.email, u.name, u.auth_provider, u.created_at
		FROM users u
		JOIN study_group_members m ON m.user_id = u.id
		WHERE m.group_id = $1::uuid
		ORDER BY m.joined_at
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	g.Members = []models.UserResponse{}
	for rows.Next() {
		var u models.UserResponse
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.AuthProvider, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		g.Members = append(g.Members, u)
	}
	return &g, rows.Err()
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if !validIDs(groupID, userID) {
		return false, nil
	}

	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM study_group_members
			WHERE group_id = $1::uuid AND user_id = $2::uuid
		)
	`, groupID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// Join adds userID to the group. Joining twice is a no-op.
func (r *GroupRepository) Join(ctx context.Context, groupID, userID string) error {
	if !validIDs(groupID, userID) {
		return ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO study_group_members (group_id, user_id)
		SELECT g.id, $2::uuid FROM study_groups g WHERE g.id = $1::uuid
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("join group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, groupID); err != nil {
			return err
		}
	}
	return nil
}

func (r *GroupRepository) Leave(ctx context.Context, groupID, userID string) error {
	if !validIDs(groupID, userID) {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		DELETE FROM study_group_members WHERE group_id = $1::uuid AND user_id = $2::uuid
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	return nil
}
