package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalidEvent — событие хранилища не удалось разобрать.
var ErrInvalidEvent = errors.New("invalid object event")

// ObjectPointer — ссылка на объект в хранилище артефактов.
type ObjectPointer struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	VersionID string `json:"version_id,omitempty"`
}

// Validate проверяет, что бакет и ключ заданы.
func (p ObjectPointer) Validate() error {
	if p.Bucket == "" || p.Key == "" {
		return fmt.Errorf("%w: bucket and key are required", ErrInvalidEvent)
	}
	return nil
}

// String — "bucket/key[@version]" для логов.
func (p ObjectPointer) String() string {
	if p.VersionID != "" {
		return p.Bucket + "/" + p.Key + "@" + p.VersionID
	}
	return p.Bucket + "/" + p.Key
}

// objectEvent — минимальная форма уведомления S3.
type objectEvent struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key       string `json:"key"`
				VersionID string `json:"versionId"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseObjectEvent извлекает указатель из уведомления хранилища.
// Используется первая запись; ключ в уведомлении URL-кодирован.
func ParseObjectEvent(data []byte) (ObjectPointer, error) {
	var ev objectEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ObjectPointer{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if len(ev.Records) == 0 {
		return ObjectPointer{}, fmt.Errorf("%w: no records", ErrInvalidEvent)
	}

	rec := ev.Records[0].S3
	key, err := url.QueryUnescape(rec.Object.Key)
	if err != nil {
		return ObjectPointer{}, fmt.Errorf("%w: key: %v", ErrInvalidEvent, err)
	}

	ptr := ObjectPointer{
		Bucket:    rec.Bucket.Name,
		Key:       key,
		VersionID: rec.Object.VersionID,
	}
	if err := ptr.Validate(); err != nil {
		return ObjectPointer{}, err
	}
	return ptr, nil
}

// DecodePointerObject разбирает содержимое объекта-указателя.
// Бакет артефактов берётся из самого указателя.
func DecodePointerObject(ptr ObjectPointer, body []byte) (DeploymentInfo, error) {
	var info DeploymentInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return DeploymentInfo{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidDeploymentInfo, ptr, err)
	}
	info.ArtifactBucket = ptr.Bucket
	if err := info.Validate(); err != nil {
		return DeploymentInfo{}, err
	}
	return info, nil
}
