package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	"github.com/alanyang/portfolio-api/internal/domain/event"
)

func TestCodec(t *testing.T) {
	sent := event.New(event.TypeDocumentCreated, domaindocument.CollectionMessages, "65f0c0ffee0000000000abcd")

	body, err := encode(sent)
	require.NoError(t, err)

	got, err := decode(body)
	require.NoError(t, err)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.Type, got.Type)
	assert.Equal(t, sent.Collection, got.Collection)
	assert.Equal(t, sent.DocumentID, got.DocumentID)
	assert.True(t, sent.Timestamp.Equal(got.Timestamp))
}

func TestDecode_Garbage(t *testing.T) {
	_, err := decode([]byte{0xc1})
	require.Error(t, err)
}
