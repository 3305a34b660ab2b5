package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFilter(t *testing.T, input string) []string {
	t.Helper()

	var out bytes.Buffer
	require.NoError(t, run(strings.NewReader(input), &out))

	raw := strings.TrimRight(out.String(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

func TestEchoValidObject(t *testing.T) {
	lines := runFilter(t, `{"a": 1, "b": [2,3], "c": null}`+"\n")
	require.Len(t, lines, 1)

	var resp struct {
		Tool   string          `json:"tool"`
		Result json.RawMessage `json:"result"`
		Done   bool            `json:"done"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &resp))
	assert.Equal(t, "echo", resp.Tool)
	assert.True(t, resp.Done)

	var got, want any
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1, "b": [2,3], "c": null}`), &want))
	assert.Equal(t, want, got)
}

func TestEchoScalars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"string", `"hello"`},
		{"number", `42`},
		{"float", `3.14`},
		{"bool", `true`},
		{"null", `null`},
		{"array", `[1, "two", false]`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := runFilter(t, tt.input+"\n")
			require.Len(t, lines, 1)

			var resp map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &resp))
			assert.JSONEq(t, tt.input, string(resp["result"]))
			assert.JSONEq(t, `"echo"`, string(resp["tool"]))
			assert.JSONEq(t, `true`, string(resp["done"]))
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	lines := runFilter(t, "not json\n")
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"error":"invalid json","done":true}`, lines[0])
}

func TestBlankLinesProduceNoOutput(t *testing.T) {
	lines := runFilter(t, "\n   \n\t\n")
	assert.Empty(t, lines)
}

func TestEmptyStream(t *testing.T) {
	lines := runFilter(t, "")
	assert.Empty(t, lines)
}

func TestMixedLinesKeepOrder(t *testing.T) {
	input := `{"ok": true}` + "\n\n" + "definitely-not-json\n"
	lines := runFilter(t, input)
	require.Len(t, lines, 2)

	assert.Contains(t, lines[0], `"tool":"echo"`)
	assert.JSONEq(t, `{"error":"invalid json","done":true}`, lines[1])
}

func TestOrderingAcrossManyLines(t *testing.T) {
	var in strings.Builder
	for i := 0; i < 50; i++ {
		b, err := json.Marshal(map[string]int{"seq": i})
		require.NoError(t, err)
		in.Write(b)
		in.WriteByte('\n')
	}

	lines := runFilter(t, in.String())
	require.Len(t, lines, 50)

	for i, line := range lines {
		var resp struct {
			Result struct {
				Seq int `json:"seq"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.Equal(t, i, resp.Result.Seq)
	}
}

func TestEchoIsRepeatable(t *testing.T) {
	input := `{"x": [1,2,3]}` + "\n" + `{"x": [1,2,3]}` + "\n"
	lines := runFilter(t, input)
	require.Len(t, lines, 2)
	assert.Equal(t, lines[0], lines[1])
}

func TestTrailingLineWithoutNewline(t *testing.T) {
	lines := runFilter(t, `{"last": true}`)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"tool":"echo"`)
}
