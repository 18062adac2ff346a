package csvcheck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSingleLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		valid    bool
		types    []MessageType
		contains string
	}{
		{"empty", "", false, []MessageType{TypeError}, "CSV is empty"},
		{"blank lines only", "\n   \n\t\n", false, []MessageType{TypeError}, "CSV is empty"},
		{"id and text", "a|hello", true, []MessageType{TypeSuccess}, "1 entries found"},
		{"id speaker text", "a|spk|hello", true, []MessageType{TypeSuccess}, "1 entries found"},
		{"empty id", "|hello", false, []MessageType{TypeError}, "id must not be empty"},
		{"whitespace id", "   |hello", false, []MessageType{TypeError}, "id must not be empty"},
		{"empty text", "a|", false, []MessageType{TypeError}, "text must not be empty"},
		{"empty text with speaker", "a|spk|  ", false, []MessageType{TypeError}, "text must not be empty"},
		{"single field", "justtext", false, []MessageType{TypeError}, "invalid format"},
		{"too many separators", "a|b|c|d", true, []MessageType{TypeWarning}, "too many separators"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.input)
			assert.Equal(t, tt.valid, res.Valid)
			require.Len(t, res.Messages, len(tt.types))
			for i, typ := range tt.types {
				assert.Equal(t, typ, res.Messages[i].Type)
			}
			assert.Contains(t, res.Messages[0].Text, tt.contains)
		})
	}
}

func TestValidateLineNumbersSkipBlankLines(t *testing.T) {
	res := Validate("a|one\n\n|two\n")
	require.False(t, res.Valid)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "line 2: id must not be empty", res.Messages[0].Text)
}

func TestValidateErrorCountMatchesInvalidLines(t *testing.T) {
	input := strings.Join([]string{
		"a_001|first sentence",
		"|no id",
		"a_003|",
		"broken",
		"a_005|spk|fine",
		"|",
		"a_007|b|c|d",
	}, "\n")

	res := Validate(input)
	assert.False(t, res.Valid)
	counts := res.Counts()
	assert.Equal(t, 4, counts[TypeError])
	assert.Equal(t, 1, counts[TypeWarning])
	assert.Zero(t, counts[TypeSuccess])
	assert.Len(t, res.Errors(), 4)
	assert.Equal(t, 7, res.Entries)
}

func TestValidateTrimsAndCountsEntries(t *testing.T) {
	res := Validate("  a|one  \r\nb|two\r\nc|spk|three\r\n")
	require.True(t, res.Valid)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, TypeSuccess, res.Messages[0].Type)
	assert.Equal(t, "3 entries found", res.Messages[0].Text)
	assert.NoError(t, res.Err())
}

func TestValidateReader(t *testing.T) {
	res, err := ValidateReader(strings.NewReader("x|y\n|z\n"))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.EqualError(t, res.Err(), "metadata invalid: line 2: id must not be empty")

	res, err = ValidateReader(strings.NewReader("|a\n|b\n"))
	require.NoError(t, err)
	assert.EqualError(t, res.Err(), "metadata invalid: line 1: id must not be empty (and 1 more)")
}
