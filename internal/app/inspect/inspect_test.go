package inspect_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/sweep/internal/app/inspect"
	"github.com/slok/sweep/internal/journal/journalmock"
	"github.com/slok/sweep/internal/model"
)

func TestServiceRun(t *testing.T) {
	rec := &model.SweepRecord{
		ID:        "01JREC",
		SweepID:   "abc123",
		Mode:      model.RunModeLocal,
		RunCount:  2,
		StartedAt: time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC),
	}
	jobs := []model.Job{
		{RunIndex: 0, ID: "1", State: model.JobStateSucceeded},
		{RunIndex: 1, ID: "2", State: model.JobStateFailed},
	}

	tests := map[string]struct {
		mock     func(m *journalmock.MockReader)
		req      inspect.Request
		expResp  *inspect.Response
		expErr   bool
		expErrIs error
	}{
		"Getting a sweep should return it with its jobs.": {
			mock: func(m *journalmock.MockReader) {
				m.On("GetSweep", mock.Anything, "abc123").Once().Return(rec, nil)
				m.On("ListJobs", mock.Anything, "01JREC").Once().Return(jobs, nil)
			},
			req:     inspect.Request{ID: "abc123"},
			expResp: &inspect.Response{Sweep: *rec, Jobs: jobs},
		},
		"A missing ID should fail.": {
			mock:     func(m *journalmock.MockReader) {},
			expErr:   true,
			expErrIs: model.ErrNotValid,
		},
		"A missing sweep should fail with not found.": {
			mock: func(m *journalmock.MockReader) {
				m.On("GetSweep", mock.Anything, "nope").Once().Return(nil, model.ErrNotFound)
			},
			req:      inspect.Request{ID: "nope"},
			expErr:   true,
			expErrIs: model.ErrNotFound,
		},
		"An error listing jobs should fail.": {
			mock: func(m *journalmock.MockReader) {
				m.On("GetSweep", mock.Anything, "abc123").Once().Return(rec, nil)
				m.On("ListJobs", mock.Anything, "01JREC").Once().Return(nil, fmt.Errorf("something"))
			},
			req:    inspect.Request{ID: "abc123"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := journalmock.NewMockReader(t)
			test.mock(m)

			svc, err := inspect.NewService(inspect.ServiceConfig{Reader: m})
			require.NoError(err)

			got, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				require.Error(err)
				if test.expErrIs != nil {
					assert.ErrorIs(err, test.expErrIs)
				}
				return
			}
			require.NoError(err)
			assert.Equal(test.expResp, got)
		})
	}
}
