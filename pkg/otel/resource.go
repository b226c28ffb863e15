package otel

// Resource 描述产生 telemetry 数据的实体，附加到所有 span 与指标上

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceNamespace 所有进程（server、worker、CLI）共用的命名空间
const ServiceNamespace = "deadmanswitch"

// NewResource 服务元信息加主机与操作系统信息
func NewResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(ServiceAttributes(cfg)...),
		resource.WithHost(),
		resource.WithOSType(),
		resource.WithOSDescription(),
	)
}

// ServiceAttributes 服务标识属性
func ServiceAttributes(cfg Config) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		semconv.ServiceNamespace(ServiceNamespace),
		semconv.TelemetrySDKLanguageGo,
	}
}
