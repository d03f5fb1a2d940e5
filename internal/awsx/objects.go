package awsx

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/shaiso/conveyor/internal/domain"
)

// MaxObjectSize — ограничение на размер читаемого объекта (артефакт
// целиком держится в памяти).
const MaxObjectSize = 256 << 20

// ErrObjectNotFound — объекта нет в хранилище.
var ErrObjectNotFound = errors.New("object not found")

// S3API — используемая часть клиента S3.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Objects читает указатели и артефакты.
type Objects struct {
	client S3API
}

// NewObjects создаёт адаптер.
func NewObjects(client S3API) *Objects {
	return &Objects{client: client}
}

// Get читает объект целиком.
func (o *Objects) Get(ctx context.Context, ptr domain.ObjectPointer) ([]byte, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(ptr.Bucket),
		Key:    aws.String(ptr.Key),
	}
	if ptr.VersionID != "" {
		in.VersionId = aws.String(ptr.VersionID)
	}

	out, err := o.client.GetObject(ctx, in)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ptr)
		}
		return nil, fmt.Errorf("get object %s: %w", ptr, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", ptr, err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("object %s exceeds %d bytes", ptr, MaxObjectSize)
	}
	return data, nil
}

// ResolvePointer читает объект-указатель и возвращает DeploymentInfo.
func (o *Objects) ResolvePointer(ctx context.Context, ptr domain.ObjectPointer) (domain.DeploymentInfo, error) {
	body, err := o.Get(ctx, ptr)
	if err != nil {
		return domain.DeploymentInfo{}, err
	}
	return domain.DecodePointerObject(ptr, body)
}

// FetchArtifact читает zip-артефакт пуша.
func (o *Objects) FetchArtifact(ctx context.Context, info domain.DeploymentInfo) ([]byte, error) {
	return o.Get(ctx, domain.ObjectPointer{Bucket: info.ArtifactBucket, Key: info.ArtifactKey()})
}
