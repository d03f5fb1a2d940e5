package sidecar

import "errors"

var (
	// ErrAlreadyReported — повторная попытка отчёта по тому же токену.
	// Логируется и никогда не повторяется.
	ErrAlreadyReported = errors.New("completion already reported")

	// ErrTokenRejected — подложка отвергла токен (истёк, неверный
	// или задача уже завершена).
	ErrTokenRejected = errors.New("completion token rejected")

	// ErrContainerNotFound — основного контейнера нет в метаданных задачи.
	ErrContainerNotFound = errors.New("container not found in task metadata")

	// ErrMetadata — не удалось получить метаданные задачи.
	ErrMetadata = errors.New("task metadata request failed")
)
