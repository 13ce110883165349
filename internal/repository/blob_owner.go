package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// BlobOwnerRepository — явное соответствие файл → владелец (таблица blob_owners).
type BlobOwnerRepository interface {
	// Register сохраняет владельца файла. Повторная регистрация — ErrConflict.
	Register(ctx context.Context, ns model.Namespace, storedName string, ownerID int64) error
	// Owner возвращает владельца файла или ErrNotFound.
	Owner(ctx context.Context, ns model.Namespace, storedName string) (int64, error)
	// Rename переносит соответствие на новое имя (после сжатия).
	Rename(ctx context.Context, ns model.Namespace, oldName, newName string) error
	// Delete удаляет соответствие. Отсутствующая запись — ErrNotFound.
	Delete(ctx context.Context, ns model.Namespace, storedName string) error
}

type blobOwnerRepo struct {
	db DBTX
}

// NewBlobOwnerRepository создаёт репозиторий владельцев файлов.
func NewBlobOwnerRepository(db DBTX) BlobOwnerRepository {
	return &blobOwnerRepo{db: db}
}

func (r *blobOwnerRepo) Register(ctx context.Context, ns model.Namespace, storedName string, ownerID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO blob_owners (namespace, stored_name, owner_id) VALUES ($1, $2, $3)`,
		string(ns), storedName, ownerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s уже зарегистрирован", ErrConflict, storedName)
		}
		return fmt.Errorf("ошибка регистрации владельца файла: %w", err)
	}
	return nil
}

func (r *blobOwnerRepo) Owner(ctx context.Context, ns model.Namespace, storedName string) (int64, error) {
	var ownerID int64
	err := r.db.QueryRow(ctx,
		`SELECT owner_id FROM blob_owners WHERE namespace = $1 AND stored_name = $2`,
		string(ns), storedName,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка получения владельца файла: %w", err)
	}
	return ownerID, nil
}

func (r *blobOwnerRepo) Rename(ctx context.Context, ns model.Namespace, oldName, newName string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE blob_owners SET stored_name = $3 WHERE namespace = $1 AND stored_name = $2`,
		string(ns), oldName, newName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s уже зарегистрирован", ErrConflict, newName)
		}
		return fmt.Errorf("ошибка переименования файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *blobOwnerRepo) Delete(ctx context.Context, ns model.Namespace, storedName string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM blob_owners WHERE namespace = $1 AND stored_name = $2`,
		string(ns), storedName,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления владельца файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
