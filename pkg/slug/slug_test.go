package slug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Solo Traveler", "solo-traveler"},
		{"Café au Lait!!", "cafe-au-lait"},
		{"  --- spaced  out --- ", "spaced-out"},
		{"UPPER lower 123", "upper-lower-123"},
		{"Pokémon: Règle d'Or", "pokemon-regle-d-or"},
		{"旅人", ""},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Make(tc.in), "input %q", tc.in)
	}
}

func TestMakeUniqueAppendsIDSuffix(t *testing.T) {
	t.Parallel()

	got := MakeUnique("Solo Traveler", "a1b2c3d4-e5f6-7890-abcd-ef0123456789")
	require.Equal(t, "solo-traveler-a1b2c3d4", got)
}

func TestMakeUniqueDisambiguatesCollidingTitles(t *testing.T) {
	t.Parallel()

	a := MakeUnique("One Shot", "aaaa1111")
	b := MakeUnique("One Shot", "bbbb2222")
	require.NotEqual(t, a, b)
}

func TestMakeUniqueFallsBackToSuffixForEmptyBase(t *testing.T) {
	t.Parallel()

	got := MakeUnique("旅人", "a1b2c3d4-0000")
	require.Equal(t, "a1b2c3d4", got)
}
