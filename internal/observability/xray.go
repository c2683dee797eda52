package observability

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Segment wraps fn in an X-Ray subsegment when ctx carries a segment, as it
// does inside Lambda with active tracing. Elsewhere fn runs untraced.
func Segment(ctx context.Context, name string, fn func(context.Context) error) error {
	if xray.GetSegment(ctx) == nil {
		return fn(ctx)
	}

	sctx, seg := xray.BeginSubsegment(ctx, name)
	if seg == nil {
		return fn(ctx)
	}
	err := fn(sctx)
	seg.Close(err)
	return err
}

// Annotate adds an indexed annotation to the current segment, if any.
func Annotate(ctx context.Context, key, value string) {
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddAnnotation(key, value)
	}
}
