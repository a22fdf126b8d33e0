package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalDate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "iso", input: "2025-11-22", want: "2025-11-22"},
		{name: "slashes", input: "11/22/2025", want: "2025-11-22"},
		{name: "dashes", input: "11-22-2025", want: "2025-11-22"},
		{name: "surrounding whitespace", input: "  2025-01-05 ", want: "2025-01-05"},
		{name: "leap day", input: "02/29/2024", want: "2024-02-29"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalDate(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalDate_EquivalentSpellingsCollide(t *testing.T) {
	a, err := CanonicalDate("2025-01-05")
	require.NoError(t, err)
	b, err := CanonicalDate("01/05/2025")
	require.NoError(t, err)
	c, err := CanonicalDate("01-05-2025")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestParseDate_Invalid(t *testing.T) {
	for _, input := range []string{"13/40/2025", "", "2025-02-30", "22/11/2025", "yesterday", "2025/11/22"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDate(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDate))
			assert.Contains(t, err.Error(), "YYYY-MM-DD")
		})
	}
}

func TestParseDate_MidnightUTC(t *testing.T) {
	d, err := ParseDate("11/22/2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.November, 22, 0, 0, 0, 0, time.UTC), d)
}
