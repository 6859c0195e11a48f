package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const videoColumns = `id, title, description, duration_minutes, category_id, user_id,
	video_file, thumbnail, is_featured, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var (
		v          Video
		categoryID sql.NullInt64
		userID     sql.NullInt64
		featured   int
		createdAt  int64
	)
	if err := row.Scan(&v.ID, &v.Title, &v.Description, &v.DurationMinutes, &categoryID, &userID,
		&v.VideoFile, &v.Thumbnail, &featured, &createdAt); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		v.CategoryID = &categoryID.Int64
	}
	if userID.Valid {
		v.UserID = &userID.Int64
	}
	v.IsFeatured = featured != 0
	v.CreatedAt = time.Unix(createdAt, 0)
	return &v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateVideo inserts v, filling in ID and CreatedAt, then notifies
// listeners once the insert has committed.
func (d *Database) CreateVideo(ctx context.Context, v *Video) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_video", start, err) }()

	if strings.TrimSpace(v.Title) == "" {
		err = fmt.Errorf("video title is required")
		return err
	}

	qctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	var res sql.Result
	res, err = d.db.ExecContext(qctx, `
		INSERT INTO videos (title, description, duration_minutes, category_id, user_id,
			video_file, thumbnail, is_featured, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.Title, v.Description, v.DurationMinutes, v.CategoryID, v.UserID,
		v.VideoFile, v.Thumbnail, boolToInt(v.IsFeatured), v.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}

	v.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	v.CreatedAt = time.Unix(v.CreatedAt.Unix(), 0)

	created := *v
	d.notifyCreated(ctx, &created)
	return nil
}

// GetVideo loads a video by id.
func (d *Database) GetVideo(ctx context.Context, id int64) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_video", start, ignoreNotFound(err)) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v *Video
	v, err = scanVideo(d.db.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	return v, err
}

// ListVideos returns all videos, newest first.
func (d *Database) ListVideos(ctx context.Context) ([]Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_videos", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, "SELECT "+videoColumns+" FROM videos ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []Video{}
	for rows.Next() {
		var v *Video
		v, err = scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	err = rows.Err()
	return videos, err
}

// UpdateVideo applies the non-nil fields of u and returns the updated record.
func (d *Database) UpdateVideo(ctx context.Context, id int64, u VideoUpdate) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_video", start, ignoreNotFound(err)) }()

	var (
		sets []string
		args []any
	)
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			err = fmt.Errorf("video title is required")
			return nil, err
		}
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.DurationMinutes != nil {
		sets = append(sets, "duration_minutes = ?")
		args = append(args, *u.DurationMinutes)
	}
	if u.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, *u.CategoryID)
	}
	if u.IsFeatured != nil {
		sets = append(sets, "is_featured = ?")
		args = append(args, boolToInt(*u.IsFeatured))
	}

	if len(sets) > 0 {
		qctx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()

		args = append(args, id)
		var res sql.Result
		res, err = d.db.ExecContext(qctx, "UPDATE videos SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			err = ErrNotFound
			return nil, err
		}
	}

	var v *Video
	v, err = d.GetVideo(ctx, id)
	return v, err
}

// SetThumbnail stores the thumbnail reference for a video. Concurrent
// writers resolve last-writer-wins.
func (d *Database) SetThumbnail(ctx context.Context, id int64, ref string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_thumbnail", start, ignoreNotFound(err)) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = d.db.ExecContext(ctx, "UPDATE videos SET thumbnail = ? WHERE id = ?", ref, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
	}
	return err
}

// DeleteVideo removes a video and its job ledger entries. Listeners are
// notified inside the transaction; their failures never abort the delete.
func (d *Database) DeleteVideo(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_video", start, ignoreNotFound(err)) }()

	var tx *sql.Tx
	tx, err = d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	var v *Video
	v, err = scanVideo(tx.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return err
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM job_runs WHERE video_id = ?", id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id); err != nil {
		return err
	}

	d.notifyDeleted(ctx, v)

	err = tx.Commit()
	return err
}

// ignoreNotFound keeps lookups of missing rows out of the error metrics.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
