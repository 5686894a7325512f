package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/mirageapi/mirage"
)

func TestTracerNoopWithoutInit(t *testing.T) {
	tr := NewTracer()
	ctx, span := tr.Start(context.Background(), "mirage.plan",
		mirage.StringAttr("http.method", "GET"),
		mirage.IntAttr("attempt", 1))
	if ctx == nil || span == nil {
		t.Fatal("nil ctx or span")
	}
	span.SetAttr(mirage.StringAttr("plan.action", "list"))
	span.Error(errors.New("boom"))
	span.End()
}

func TestAttrConversion(t *testing.T) {
	for _, a := range []mirage.SpanAttr{
		{Key: "s", Value: "x"},
		{Key: "i", Value: 1},
		{Key: "i64", Value: int64(2)},
		{Key: "f", Value: 3.5},
		{Key: "b", Value: true},
		{Key: "other", Value: []string{"fallback"}},
	} {
		kv := toOTELAttr(a)
		if string(kv.Key) != a.Key {
			t.Errorf("key = %s", kv.Key)
		}
	}
}
