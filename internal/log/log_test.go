package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/sweep/internal/log"
)

func TestCtxWithValues(t *testing.T) {
	tests := map[string]struct {
		ctx   func() context.Context
		kv    log.Kv
		expKv log.Kv
	}{
		"Setting values on an empty context should store them.": {
			ctx:   context.Background,
			kv:    log.Kv{"sweep": "abc"},
			expKv: log.Kv{"sweep": "abc"},
		},

		"Setting values on a context with values should merge them.": {
			ctx: func() context.Context {
				return log.CtxWithValues(context.Background(), log.Kv{"sweep": "abc", "run": 1})
			},
			kv:    log.Kv{"run": 2, "job": "42"},
			expKv: log.Kv{"sweep": "abc", "run": 2, "job": "42"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := log.CtxWithValues(test.ctx(), test.kv)
			assert.Equal(t, test.expKv, log.ValuesFromCtx(ctx))
		})
	}
}

func TestValuesFromCtxWithoutValues(t *testing.T) {
	assert.Equal(t, log.Kv{}, log.ValuesFromCtx(context.Background()))
}
