package cron_test

import (
	"testing"
	"time"

	"github.com/absmach/fedcoord/pkg/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		desc     string
		expr     string
		timezone string
		err      error
	}{
		{desc: "five fields", expr: "*/5 * * * *"},
		{desc: "descriptor", expr: "@every 30s"},
		{desc: "with timezone", expr: "0 9 * * *", timezone: "Europe/Belgrade"},
		{desc: "empty", expr: "", err: cron.ErrInvalidCronExpression},
		{desc: "garbage", expr: "every now and then", err: cron.ErrInvalidCronExpression},
		{desc: "seconds field is not accepted", expr: "0 0 * * * *", err: cron.ErrInvalidCronExpression},
		{desc: "unknown timezone", expr: "* * * * *", timezone: "Mars/Olympus", err: cron.ErrInvalidTimezone},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := cron.Parse(tc.expr, tc.timezone)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestNext(t *testing.T) {
	from := time.Date(2025, 3, 1, 10, 7, 30, 0, time.UTC)

	s, err := cron.Parse("*/15 * * * *", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC), s.Next(from).UTC())

	every, err := cron.Parse("@every 1m", "")
	require.NoError(t, err)
	assert.Equal(t, from.Add(time.Minute), every.Next(from).UTC())

	var nilSchedule *cron.Schedule
	assert.True(t, nilSchedule.Next(from).IsZero())
}
