package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ErrNonPositiveAmount 注资金额（最小单位）必须为正
var ErrNonPositiveAmount = errors.New("funding amount must be positive")

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
