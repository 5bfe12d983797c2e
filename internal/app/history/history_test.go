package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/sweep/internal/app/history"
	"github.com/slok/sweep/internal/journal/journalmock"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config history.ServiceConfig
		expErr bool
	}{
		"A valid config should create the service.": {
			config: history.ServiceConfig{Reader: &journalmock.MockReader{}, Logger: log.Noop},
		},
		"A missing reader should fail.": {
			config: history.ServiceConfig{Logger: log.Noop},
			expErr: true,
		},
		"A nil logger should default to noop.": {
			config: history.ServiceConfig{Reader: &journalmock.MockReader{}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := history.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	t0 := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	records := []model.SweepRecord{
		{ID: "r3", SweepID: "b", RunCount: 1, StartedAt: t0.Add(2 * time.Hour)},
		{ID: "r2", SweepID: "a", RunCount: 2, StartedAt: t0.Add(time.Hour)},
		{ID: "r1", SweepID: "a", RunCount: 3, StartedAt: t0},
	}

	tests := map[string]struct {
		mock       func(m *journalmock.MockReader)
		req        history.Request
		expRecords []model.SweepRecord
		expErr     bool
	}{
		"Listing without filters should return all the executions.": {
			mock: func(m *journalmock.MockReader) {
				m.On("ListSweeps", mock.Anything).Once().Return(records, nil)
			},
			expRecords: records,
		},
		"Filtering by sweep should return only its executions.": {
			mock: func(m *journalmock.MockReader) {
				m.On("ListSweeps", mock.Anything).Once().Return(records, nil)
			},
			req:        history.Request{SweepID: "a"},
			expRecords: records[1:],
		},
		"A limit should keep the newest executions.": {
			mock: func(m *journalmock.MockReader) {
				m.On("ListSweeps", mock.Anything).Once().Return(records, nil)
			},
			req:        history.Request{Limit: 2},
			expRecords: records[:2],
		},
		"A limit bigger than the executions should return all of them.": {
			mock: func(m *journalmock.MockReader) {
				m.On("ListSweeps", mock.Anything).Once().Return(records, nil)
			},
			req:        history.Request{Limit: 10},
			expRecords: records,
		},
		"A negative limit should fail.": {
			mock:   func(m *journalmock.MockReader) {},
			req:    history.Request{Limit: -1},
			expErr: true,
		},
		"A journal error should fail.": {
			mock: func(m *journalmock.MockReader) {
				m.On("ListSweeps", mock.Anything).Once().Return(nil, fmt.Errorf("something"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := journalmock.NewMockReader(t)
			test.mock(m)

			svc, err := history.NewService(history.ServiceConfig{Reader: m})
			require.NoError(err)

			got, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(test.expRecords, got)
		})
	}
}
