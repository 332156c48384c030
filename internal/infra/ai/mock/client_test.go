package mock

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/domain/audits"
)

func TestComplete_ProducesValidResult(t *testing.T) {
	out, err := Client{}.Complete(context.Background(), ai.Request{Images: []ai.Image{
		{Sequence: 0, Role: "start"},
		{Sequence: 1, Role: "end"},
	}})
	require.NoError(t, err)

	var res audits.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NoError(t, res.Normalize())
	assert.Len(t, res.Analysis.Images, 2)
	assert.Len(t, res.Scores.ByHeuristic, 10)
	assert.Equal(t, audits.RoleEnd, res.Analysis.Images[1].Role)
}
