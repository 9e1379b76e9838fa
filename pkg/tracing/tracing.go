// Package tracing 提供基于OpenTelemetry的分布式追踪
//
// # 核心概念
//
//   - Trace：一个完整的请求链路（HTTP请求 → 库存操作 → 数据库事务）
//   - Span：链路中的一个操作单元，记录名称、耗时、状态和属性
//   - SpanContext：跨进程传递的TraceID/SpanID
//
// # 使用示例
//
//	shutdown, err := tracing.InitTracer(ctx, tracing.Options{
//	    ServiceName: "stock-ledger",
//	    Endpoint:    "localhost:4317",
//	    SampleRatio: 0.1,
//	    Insecure:    true,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracing.StartSpan(ctx, "stock-ledger", "ReserveStock",
//	    attribute.String("sku", sku))
//	defer func() { tracing.EndSpan(span, err) }()
//
// 未调用InitTracer时，otel全局Provider是空实现，StartSpan不产生任何开销。
package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Options 追踪配置
type Options struct {
	ServiceName string  // service.name资源属性（必填）
	Endpoint    string  // OTLP gRPC端点，如 localhost:4317
	SampleRatio float64 // 采样率 (0,1]，<=0按1处理
	Insecure    bool    // 禁用TLS（本地Jaeger）
}

// InitTracer 初始化全局TracerProvider并返回关闭函数
//
// 关闭函数必须在进程退出前调用，否则最后一批Span会丢失
func InitTracer(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.ServiceName == "" {
		return nil, errors.New("tracing: ServiceName不能为空")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(initCtx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("创建OTLP exporter失败: %w", err)
	}

	res, err := resource.New(initCtx,
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("创建资源属性失败: %w", err)
	}

	tp := NewProvider(res, opts.SampleRatio, sdktrace.WithBatcher(exporter))
	Install(tp)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}

// NewProvider 创建TracerProvider
//
// 采样策略：ParentBased(TraceIDRatioBased)，上游已采样的请求始终采样
func NewProvider(res *resource.Resource, ratio float64, processors ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
	if res != nil {
		opts = append(opts, sdktrace.WithResource(res))
	}
	opts = append(opts, processors...)
	return sdktrace.NewTracerProvider(opts...)
}

// Install 设置全局Provider和W3C传播器
func Install(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
}

// StartSpan 创建Span（ctx中有父Span时自动成为子Span）
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan 根据err设置状态并结束Span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ExtractTraceID 从Context中提取TraceID（用于日志关联）
func ExtractTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// ExtractSpanID 从Context中提取SpanID
func ExtractSpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}
