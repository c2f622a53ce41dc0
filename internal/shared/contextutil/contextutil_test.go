package contextutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ExtractMetadata(ctx).Fields())

	ctx = WithRequestID(ctx, "rid-1")
	ctx = WithUserID(ctx, "u-1")
	ctx = WithEmployeeID(ctx, "e-1")

	md := ExtractMetadata(ctx)
	assert.Equal(t, Metadata{RequestID: "rid-1", UserID: "u-1", EmployeeID: "e-1"}, md)
	assert.Len(t, md.Fields(), 3)
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background(), nil))

	fallback := zap.NewNop()
	assert.Same(t, fallback, GetLogger(context.Background(), fallback))

	scoped := zap.NewExample()
	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, GetLogger(ctx, fallback))
}
