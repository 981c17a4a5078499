package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestWithRequestID_GeneratesAndPropagates(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx, id := WithRequestID(context.Background(), base, "")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, RequestID(ctx))

	zerolog.Ctx(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)
}

func TestWithRequestID_KeepsProvided(t *testing.T) {
	ctx, id := WithRequestID(context.Background(), zerolog.Nop(), "  req-42 ")
	assert.Equal(t, "req-42", id)
	assert.Equal(t, "req-42", RequestID(ctx))
}
