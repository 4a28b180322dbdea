package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalrag/backend/internal/domain"
)

func TestEqualsExpr(t *testing.T) {
	expr, err := equalsExpr(domain.MetaSourceID, "42")
	require.NoError(t, err)
	assert.Equal(t, `file_id == "42"`, expr)

	expr, err = equalsExpr(domain.MetaCitation, `S v "M" \ HH`)
	require.NoError(t, err)
	assert.Equal(t, `citation == "S v \"M\" \\ HH"`, expr)

	_, err = equalsExpr("embedding", "x")
	assert.Error(t, err)
}

func TestColumnString(t *testing.T) {
	col := entity.NewColumnVarChar(fieldText, []string{"a", "b"})
	assert.Equal(t, "b", columnString(col, 1))
	assert.Equal(t, "", columnString(col, 5))
	assert.Equal(t, "", columnString(nil, 0))
}
