package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName — имя инструментирующей библиотеки.
const TracerName = "github.com/shaiso/conveyor"

// Tracer возвращает tracer глобального провайдера.
// Без настроенного провайдера спаны no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan открывает спан этапа конвейера.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan закрывает спан, отмечая ошибку, если она есть.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// DeploymentAttributes — атрибуты спана для деплоя.
func DeploymentAttributes(id, owner, repo, branch, sha string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("deployment.id", id),
		attribute.String("git.repo", owner+"/"+repo),
		attribute.String("git.branch", branch),
		attribute.String("git.sha", sha),
	}
}
