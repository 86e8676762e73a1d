package drafting

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/worktype-resolver/internal/types"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey(fragments("Install a bidet", "patch drywall"))
	b := CacheKey(fragments("  install a BIDET ", "Patch Drywall"))
	reversed := CacheKey(fragments("patch drywall", "install a bidet"))

	assert.True(t, strings.HasPrefix(a, "drafts:"))
	assert.Len(t, a, len("drafts:")+64)
	assert.Equal(t, a, b, "normalization does not change the key")
	assert.NotEqual(t, a, reversed, "fragment order is part of the key")
}

func TestBuildMessages(t *testing.T) {
	messages, err := BuildMessages(fragments("install a bidet"))
	require.NoError(t, err)
	require.Len(t, messages, 2)

	system := messages[0].Content
	assert.Contains(t, system, "Interior-Structural, Interior-Finish, Exterior-Structural, Exterior-Finish, Mechanical")
	assert.Contains(t, system, "area, linear, quantity")
	assert.Contains(t, system, "For area: sq ft, sq yd, sq m")
	assert.Contains(t, system, "For linear: ft, in, yd, m")
	assert.Contains(t, system, "For quantity: each, job, set")
	assert.NotContains(t, system, "{{.")

	assert.Contains(t, messages[1].Content, `[1] "install a bidet"`)
}

func TestValidateElement(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		position  int
		count     int
		wantStage Stage
		wantIndex int
	}{
		{"valid defaults index to position", bidetElement(""), 1, 3, "", 2},
		{"valid explicit index", bidetElement(`,"fragmentIndex":3`), 0, 3, "", 3},
		{"structural", `{"name":"X"}`, 0, 1, StageStructural, 0},
		{"units", `{"name":"Deck Stain","parentBucket":"Exterior-Finish","measurementType":"area","suggestedUnits":"each"}`, 0, 1, StageUnits, 0},
		{"index out of range", bidetElement(`,"fragmentIndex":4`), 0, 3, StageMapping, 0},
		{"position beyond fragments", bidetElement(""), 3, 3, StageMapping, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateElement(json.RawMessage(tt.raw), tt.position, tt.count)
			if tt.wantStage == "" {
				require.True(t, v.OK(), "unexpected error: %v", v.Err)
				assert.Equal(t, tt.wantIndex, v.Draft.FragmentIndex)
				return
			}
			assert.False(t, v.OK())
			assert.Equal(t, tt.wantStage, v.Stage)
			assert.Nil(t, v.Draft)
		})
	}
}

func TestValidateElement_UnitErrorType(t *testing.T) {
	v := ValidateElement(json.RawMessage(`{"name":"Deck Stain","parentBucket":"Exterior-Finish","measurementType":"area","suggestedUnits":"each"}`), 0, 1)

	var mismatch *types.UnitMismatchError
	require.ErrorAs(t, v.Err, &mismatch)
	assert.Equal(t, types.MeasurementArea, mismatch.MeasurementType)
}

func bidetElement(extra string) string {
	return `{"name":"Bidet Installation","parentBucket":"Mechanical","measurementType":"quantity","suggestedUnits":"each"` + extra + `}`
}
